package stream

import (
	"encoding/json"
	"log"

	"scooter-ride/internal/ride"
)

// Observer broadcasts every ride change to the clients watching its scooter.
// Changes made before a scooter is selected have no audience and are dropped.
func Observer(h *Hub) ride.Observer {
	return ride.ObserverFunc(func(change ride.Change) {
		if change.ScooterID == "" {
			return
		}
		payload, err := json.Marshal(change)
		if err != nil {
			log.Printf("stream encode change: %v", err)
			return
		}
		h.Broadcast(change.ScooterID, payload)
	})
}
