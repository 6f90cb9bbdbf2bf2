package worker

// HandlerRegistrar subscribes event handlers to a dispatcher.
type HandlerRegistrar interface {
	RegisterHandlers()
}

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(registrars ...HandlerRegistrar) {
	for _, r := range registrars {
		if r == nil {
			continue
		}
		r.RegisterHandlers()
	}
}
