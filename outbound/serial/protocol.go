package serial

import (
	"fmt"
	"strings"
)

// Line protocol spoken by the dispenser microcontroller. Every message
// is ASCII and newline-terminated.
//
//	device -> host: READY | COMPLETE | ERROR:<reason>
//	host -> device: DISPENSE,<item>,<quantity>
const (
	tokenReady    = "READY"
	tokenComplete = "COMPLETE"
	tokenErrorPfx = "ERROR:"

	commandDispense = "DISPENSE,%s,%d\n"
)

type NoticeKind int

const (
	NoticeUnrecognized NoticeKind = iota
	NoticeReady
	NoticeComplete
	NoticeError
	NoticeFault
)

// Notice is one parsed device message. NoticeFault is synthesized by
// the link itself when the connection dies, it never comes off the wire.
type Notice struct {
	Kind   NoticeKind
	Reason string
	Raw    string
}

func parseNotice(line string) Notice {
	switch {
	case line == tokenReady:
		return Notice{Kind: NoticeReady, Raw: line}
	case line == tokenComplete:
		return Notice{Kind: NoticeComplete, Raw: line}
	case strings.HasPrefix(line, tokenErrorPfx):
		return Notice{Kind: NoticeError, Reason: strings.TrimPrefix(line, tokenErrorPfx), Raw: line}
	default:
		return Notice{Kind: NoticeUnrecognized, Raw: line}
	}
}

func formatDispenseCommand(item string, quantity int32) []byte {
	return []byte(fmt.Sprintf(commandDispense, item, quantity))
}
