package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arzzra/rtc_sdk/pkg/events"
)

func TestNeedsAccept(t *testing.T) {
	tests := []struct {
		name string
		ev   events.Event
		want bool
	}{
		{name: "pending without auto answer", ev: events.Event{EventType: events.PendingSession}, want: true},
		{name: "pending with auto answer", ev: events.Event{EventType: events.PendingSession, AutoAnswer: true}},
		{name: "started awaiting accept", ev: events.Event{EventType: events.SessionStarted, AwaitingAccept: true}, want: true},
		{name: "started and accepted", ev: events.Event{EventType: events.SessionStarted}},
		{name: "ended", ev: events.Event{EventType: events.SessionEnded, AwaitingAccept: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, needsAccept(tt.ev))
		})
	}
}
