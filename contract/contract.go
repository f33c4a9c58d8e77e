//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"lanmeet/domain"
)

// Worker is a supervised long-lived loop. A nil return means clean
// termination; errors and panics lead to a restart.
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// used for logging and supervision events.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Broadcaster delivers control envelopes to registered connections. Within a
// single connection events arrive in the order they were produced; across
// connections there is no ordering guarantee.
type Broadcaster interface {
	BroadcastToAll(action string, data any)
	BroadcastToAllExcept(username string, action string, data any)
	SendTo(username string, action string, data any) bool
}

// Evictor removes a participant through the single teardown path shared by
// voluntary leave, watchdog eviction, kick and timer expiry. It returns false
// when the participant was already gone, so racing removals stay idempotent.
type Evictor interface {
	Evict(username, reason string) bool
}

// MediaService is the per-participant cleanup hook exposed by the audio and
// video endpoints. Safe to call for users that never sent a frame.
type MediaService interface {
	RemoveUser(username string)
}

// ChatLog is the chat collaborator: append plus bounded replay. The control
// plane never reads or writes its storage directly.
type ChatLog interface {
	Append(msg domain.ChatMessage) error
	Recent(limit int) ([]domain.ChatMessage, error)
}

// FileCatalog is the file collaborator: announced offers only, no chunk
// transfer.
type FileCatalog interface {
	Offer(offer domain.FileOffer)
	List() []domain.FileOffer
}
