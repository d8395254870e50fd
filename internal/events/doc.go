// Package events renders and publishes conductor's lifecycle, health,
// breaker and scaling notifications on the message bus.
//
// Every notification is an Event with a reason code, a severity and a human
// readable message produced by the MessageTemplateEngine. Messages are Go
// text/templates with the sprig function set available:
//
//	engine := events.NewMessageTemplateEngine()
//	_ = engine.SetTemplate(events.ReasonInstanceFailed, "{{.Service | upper}} down: {{.Error}}")
//
// The Publisher JSON-encodes events and publishes them on the topic returned
// by TopicFor. Publish failures are logged and never surface to the caller,
// so a slow bus cannot stall a lifecycle transition:
//
//	pub := events.NewPublisher(b, time.Second)
//	pub.Publish(events.ReasonBreakerOpened, events.EventData{Service: "tts", Instance: id})
package events
