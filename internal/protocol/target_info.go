package protocol

import "github.com/tidwall/gjson"

// TargetInfo describes a debuggable execution context as reported by
// Target.targetCreated.
type TargetInfo struct {
	TargetID           string
	Title              string
	URL                string
	OpenerID           string
	WaitingForDebugger bool
}

// ParseTargetInfo extracts the targetInfo object from a targetCreated
// event payload.
func ParseTargetInfo(params gjson.Result) TargetInfo {
	info := params.Get("targetInfo")
	return TargetInfo{
		TargetID:           info.Get("targetId").String(),
		Title:              info.Get("title").String(),
		URL:                info.Get("url").String(),
		OpenerID:           info.Get("openerId").String(),
		WaitingForDebugger: info.Get("waitingForDebugger").Bool(),
	}
}
