package session

import (
	"context"

	"github.com/looplab/fsm"
)

// State состояние сессии
type State string

const (
	StateProposed     State = "proposed"
	StateAccepted     State = "accepted"
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StateEnding       State = "ending"
	StateEnded        State = "ended"
)

func (s State) String() string { return string(s) }

// Terminal true для ended
func (s State) Terminal() bool { return s == StateEnded }

const (
	eventAccept   = "accept"
	eventInit     = "init"
	eventActivate = "activate"
	eventEnd      = "end"
	eventFinish   = "finish"
)

// lifecycle автомат состояний одной сессии.
// Колбэки только сообщают о переходах и не вызывают Event.
type lifecycle struct {
	machine *fsm.FSM
}

func newLifecycle(initial State, onTransition func(from, to State)) *lifecycle {
	l := &lifecycle{}
	l.machine = fsm.NewFSM(
		string(initial),
		fsm.Events{
			{Name: eventAccept, Src: []string{string(StateProposed)}, Dst: string(StateAccepted)},
			{Name: eventInit, Src: []string{string(StateProposed), string(StateAccepted)}, Dst: string(StateInitializing)},
			{Name: eventActivate, Src: []string{string(StateInitializing)}, Dst: string(StateActive)},
			{Name: eventEnd, Src: []string{
				string(StateProposed), string(StateAccepted), string(StateInitializing), string(StateActive),
			}, Dst: string(StateEnding)},
			{Name: eventFinish, Src: []string{
				string(StateProposed), string(StateAccepted), string(StateInitializing), string(StateActive), string(StateEnding),
			}, Dst: string(StateEnded)},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				if onTransition != nil {
					onTransition(State(e.Src), State(e.Dst))
				}
			},
		},
	)
	return l
}

// Current текущее состояние
func (l *lifecycle) Current() State {
	return State(l.machine.Current())
}

// fire выполняет событие и сообщает, произошел ли переход.
// Недопустимое из текущего состояния событие не является ошибкой.
func (l *lifecycle) fire(ctx context.Context, event string) bool {
	return l.machine.Event(ctx, event) == nil
}

func (l *lifecycle) Accept(ctx context.Context) bool   { return l.fire(ctx, eventAccept) }
func (l *lifecycle) Init(ctx context.Context) bool     { return l.fire(ctx, eventInit) }
func (l *lifecycle) Activate(ctx context.Context) bool { return l.fire(ctx, eventActivate) }

// BeginEnding true, если этот вызов перевел сессию в ending
func (l *lifecycle) BeginEnding(ctx context.Context) bool { return l.fire(ctx, eventEnd) }

// Finish true только для вызова, который перевел сессию в ended
func (l *lifecycle) Finish(ctx context.Context) bool { return l.fire(ctx, eventFinish) }
