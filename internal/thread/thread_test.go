package thread

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/vburojevic/nodebridge/internal/protocol"
)

func TestInitializeEnablesRuntime(t *testing.T) {
	client, server := net.Pipe()
	sess := protocol.NewSession(client, nil)
	sess.Start()
	defer sess.Close()

	r := bufio.NewReader(server)
	go func() {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		frame := gjson.Parse(line)
		fmt.Fprintf(server, `{"id":%d,"result":{}}`+"\n", frame.Get("id").Int())
	}()

	b := NewFactory(nil).NewThread(sess, "sub-1", "app.js")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Initialize(ctx))
}

func TestContextsDestroyedFiltersBySubSession(t *testing.T) {
	client, server := net.Pipe()
	sess := protocol.NewSession(client, nil)
	sess.Start()
	defer sess.Close()

	r := bufio.NewReader(server)
	go func() {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		frame := gjson.Parse(line)
		fmt.Fprintf(server, `{"id":%d,"result":{}}`+"\n", frame.Get("id").Int())
	}()

	b := NewFactory(nil).NewThread(sess, "sub-1", "app.js")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Initialize(ctx))

	fired := make(chan bool, 2)
	b.OnExecutionContextsDestroyed(func(def bool) { fired <- def })

	// a different sub-session must be ignored
	_, err := server.Write([]byte(`{"method":"Runtime.executionContextsDestroyed","sessionId":"sub-2","params":{"defaultDestroyed":true}}` + "\n"))
	require.NoError(t, err)
	_, err = server.Write([]byte(`{"method":"Runtime.executionContextsDestroyed","sessionId":"sub-1","params":{"defaultDestroyed":true}}` + "\n"))
	require.NoError(t, err)

	select {
	case def := <-fired:
		assert.True(t, def)
	case <-time.After(5 * time.Second):
		t.Fatal("notification not relayed")
	}
	select {
	case <-fired:
		t.Fatal("notification for a foreign sub-session was relayed")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestContextsDestroyedRelaysToAllSubscribers(t *testing.T) {
	client, server := net.Pipe()
	sess := protocol.NewSession(client, nil)
	sess.Start()
	defer sess.Close()

	r := bufio.NewReader(server)
	go func() {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		frame := gjson.Parse(line)
		fmt.Fprintf(server, `{"id":%d,"result":{}}`+"\n", frame.Get("id").Int())
	}()

	b := NewFactory(nil).NewThread(sess, "sub-1", "app.js")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Initialize(ctx))

	first := make(chan bool, 1)
	second := make(chan bool, 1)
	b.OnExecutionContextsDestroyed(func(def bool) { first <- def })
	b.OnExecutionContextsDestroyed(func(def bool) { second <- def })

	_, err := server.Write([]byte(`{"method":"Runtime.executionContextsDestroyed","sessionId":"sub-1","params":{"defaultDestroyed":false}}` + "\n"))
	require.NoError(t, err)

	for _, ch := range []chan bool{first, second} {
		select {
		case def := <-ch:
			assert.False(t, def)
		case <-time.After(5 * time.Second):
			t.Fatal("notification not relayed to every subscriber")
		}
	}
}

func TestDisposeSilencesNotifications(t *testing.T) {
	client, server := net.Pipe()
	sess := protocol.NewSession(client, nil)
	sess.Start()
	defer sess.Close()

	r := bufio.NewReader(server)
	go func() {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		frame := gjson.Parse(line)
		fmt.Fprintf(server, `{"id":%d,"result":{}}`+"\n", frame.Get("id").Int())
	}()

	b := NewFactory(nil).NewThread(sess, "sub-1", "app.js")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Initialize(ctx))

	fired := make(chan bool, 1)
	b.OnExecutionContextsDestroyed(func(def bool) { fired <- def })
	b.Dispose()
	b.Dispose() // idempotent

	_, err := server.Write([]byte(`{"method":"Runtime.executionContextsDestroyed","sessionId":"sub-1","params":{"defaultDestroyed":true}}` + "\n"))
	require.NoError(t, err)

	select {
	case <-fired:
		t.Fatal("disposed thread must not relay notifications")
	case <-time.After(100 * time.Millisecond):
	}
}
