package conversation

import (
	"context"
	"strings"
)

// AssistantShortAnswerer answers off-script questions with a constrained run
// on the user's thread.
type AssistantShortAnswerer struct {
	driver *RunDriver
}

func NewAssistantShortAnswerer(driver *RunDriver) *AssistantShortAnswerer {
	if driver == nil {
		panic("conversation: run driver cannot be nil")
	}
	return &AssistantShortAnswerer{driver: driver}
}

func (a *AssistantShortAnswerer) ShortAnswer(ctx context.Context, req ShortAnswerRequest) (string, error) {
	text, err := a.driver.Run(ctx, RunRequest{
		ThreadID:     req.ThreadID,
		UserID:       req.UserID,
		Instructions: ShortAnswerInstructions(req.Step),
		Profile:      req.Profile,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
