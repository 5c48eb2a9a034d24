package bookmarklist

import "context"

// Level is the severity of a Notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a transient message for the user.
type Notification struct {
	Level   Level
	Message string
	Err     error
}

// Messages shown to the user.
const (
	MsgAdded        = "Bookmark added successfully"
	MsgAddFailed    = "Failed to add bookmark"
	MsgDuplicate    = "This URL already exists in your library"
	MsgDeleted      = "Deleted"
	MsgDeleteFailed = "Could not delete"
	MsgFeedLost     = "Live updates disconnected"
)

// DeletePrompt is the question put to a Confirmer before deleting.
const DeletePrompt = "Delete this bookmark?"

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// AlwaysConfirm accepts every prompt.
var AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, string) (bool, error) {
	return true, nil
})
