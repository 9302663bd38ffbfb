package logAction

import "fmt"

type LoggerAction struct {
	Action            string
	ActionDescription string
	SubAction         string
}

const (
	DB_CREATE = "create"
	DB_READ   = "read"
	DB_UPDATE = "update"
	DB_DELETE = "delete"
)

func INBOUND(desc string) LoggerAction {
	return LoggerAction{Action: "[INBOUND]", ActionDescription: desc}
}

func OUTBOUND(desc string) LoggerAction {
	return LoggerAction{Action: "[OUTBOUND]", ActionDescription: desc}
}

func HTTP_REQUEST(dependency, desc string) LoggerAction {
	return LoggerAction{Action: "[HTTP_REQUEST]", ActionDescription: desc, SubAction: dependency}
}

func HTTP_RESPONSE(dependency, desc string) LoggerAction {
	return LoggerAction{Action: "[HTTP_RESPONSE]", ActionDescription: desc, SubAction: dependency}
}

func DB_REQUEST(operation, desc string) LoggerAction {
	return LoggerAction{Action: "[DB_REQUEST]", ActionDescription: desc, SubAction: operation}
}

func DB_RESPONSE(operation, desc string) LoggerAction {
	return LoggerAction{Action: "[DB_RESPONSE]", ActionDescription: desc, SubAction: operation}
}

func PRODUCE(topic string) LoggerAction {
	return LoggerAction{Action: "[PRODUCE]", ActionDescription: fmt.Sprintf("publish to %s", topic), SubAction: topic}
}

func BUSINESS(desc string) LoggerAction {
	return LoggerAction{Action: "[BUSINESS]", ActionDescription: desc}
}

func EXCEPTION(desc string) LoggerAction {
	return LoggerAction{Action: "[EXCEPTION]", ActionDescription: desc}
}
