package patrol

import (
	"context"
	"fmt"

	"github.com/ppiankov/codepatrol/internal/knowledge"
	"github.com/ppiankov/codepatrol/internal/models"
	"github.com/ppiankov/codepatrol/internal/notify"
	"github.com/ppiankov/codepatrol/internal/reporter"
)

// WebhookNotifier posts the markdown report through a chat webhook.
type WebhookNotifier struct {
	Webhook *notify.Webhook
}

// Notify implements Notifier. A nil webhook delivers nothing.
func (n WebhookNotifier) Notify(ctx context.Context, r *models.PatrolReport) string {
	if n.Webhook == nil {
		return ""
	}
	return n.Webhook.Deliver(ctx, notify.Message{
		Title:     reporter.Title(r),
		Text:      reporter.Markdown(r),
		Summary:   r.Summary,
		RiskLevel: string(r.RiskLevel),
		RunID:     r.RunID,
	})
}

// KnowledgeRecorder stores each report as a note in the knowledge store.
type KnowledgeRecorder struct {
	Store *knowledge.Store
}

// Record implements KnowledgeSink.
func (k KnowledgeRecorder) Record(ctx context.Context, r *models.PatrolReport) error {
	if k.Store == nil {
		return nil
	}
	if _, err := k.Store.Save(ctx, NoteFromReport(r)); err != nil {
		return fmt.Errorf("knowledge record: %w", err)
	}
	return nil
}

// NoteFromReport converts a report into a knowledge note.
func NoteFromReport(r *models.PatrolReport) knowledge.Note {
	return knowledge.Note{
		RunID:         r.RunID,
		Title:         reporter.Title(r),
		Body:          reporter.Markdown(r),
		Summary:       r.Summary,
		RiskLevel:     string(r.RiskLevel),
		TotalFindings: r.BeforeFindings.TotalFindings(),
		RolledBack:    r.RolledBack,
		CreatedAt:     r.StartedAt,
	}
}
