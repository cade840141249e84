package eventbus

import "github.com/eduadocs/backend/internal/domain"

type WizardEventType string

const (
	WizardEventSessionCreated    WizardEventType = "SessionCreated"
	WizardEventStepChanged       WizardEventType = "StepChanged"
	WizardEventActionRejected    WizardEventType = "ActionRejected"
	WizardEventDocumentsUploaded WizardEventType = "DocumentsUploaded"
	WizardEventSessionEnded      WizardEventType = "SessionEnded"
)

// WizardEventTypes 所有事件类型，便于一次订阅全部
var WizardEventTypes = []WizardEventType{
	WizardEventSessionCreated,
	WizardEventStepChanged,
	WizardEventActionRejected,
	WizardEventDocumentsUploaded,
	WizardEventSessionEnded,
}

type WizardEvent struct {
	Type      WizardEventType
	SessionID string
	Action    domain.Action
	From      domain.Step
	To        domain.Step
	State     domain.SessionState
	Error     string
}

type WizardEventHandler = Handler[WizardEvent]
type WizardEventBus = Bus[WizardEventType, WizardEvent]

func NewWizardEventBus() *WizardEventBus {
	return NewBus[WizardEventType, WizardEvent]()
}

// SubscribeAll 订阅全部向导事件
func SubscribeAll(bus *WizardEventBus, handler WizardEventHandler) func() {
	unsubscribes := make([]func(), 0, len(WizardEventTypes))
	for _, eventType := range WizardEventTypes {
		unsubscribes = append(unsubscribes, bus.Subscribe(eventType, handler))
	}
	return func() {
		for _, unsubscribe := range unsubscribes {
			unsubscribe()
		}
	}
}
