// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dalemusser/trackhub/internal/app/store/audit"
	"github.com/dalemusser/trackhub/internal/app/system/ratelimit"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Auth controls logging for authentication events (register, login,
	// password changes).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Auth string
	// Activity controls logging for project and bug events (CRUD,
	// membership changes, assignments).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Activity string
}

// Logger provides convenience methods for logging audit events.
// It logs to both MongoDB (via audit.Store) and structured logs (via zap).
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}

	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.ProjectID != nil {
		fields = append(fields, zap.String("project_id", event.ProjectID.Hex()))
	}
	if event.BugID != nil {
		fields = append(fields, zap.String("bug_id", event.BugID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
// Logging destination is controlled by config: "all", "db", "log", or "off".
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryAuth:
		setting = l.config.Auth
	case audit.CategoryProject, audit.CategoryBug:
		setting = l.config.Activity
	default:
		setting = "all"
	}

	if setting == "off" {
		return
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}

	if setting == "all" || setting == "db" {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// --- Authentication Events ---

// UserRegistered logs a new account registration.
func (l *Logger) UserRegistered(ctx context.Context, r *http.Request, userID primitive.ObjectID, email string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventUserRegistered,
		UserID:    &userID,
		IP:        ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details:   map[string]string{"email": email},
	})
}

// LoginSuccess logs a successful password login.
func (l *Logger) LoginSuccess(ctx context.Context, r *http.Request, userID primitive.ObjectID, email string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLoginSuccess,
		UserID:    &userID,
		IP:        ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details:   map[string]string{"email": email},
	})
}

// GoogleLoginSuccess logs a successful Google OAuth login.
func (l *Logger) GoogleLoginSuccess(ctx context.Context, r *http.Request, userID primitive.ObjectID, email string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventGoogleLoginSuccess,
		UserID:    &userID,
		IP:        ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details:   map[string]string{"email": email},
	})
}

// LoginFailedUserNotFound logs a login attempt for an unknown email.
func (l *Logger) LoginFailedUserNotFound(ctx context.Context, r *http.Request, attemptedEmail string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailedUserNotFound,
		IP:            ratelimit.ClientIP(r),
		UserAgent:     r.UserAgent(),
		Success:       false,
		FailureReason: "user not found",
		Details:       map[string]string{"attempted_email": attemptedEmail},
	})
}

// LoginFailedWrongPassword logs a login attempt with a bad password.
func (l *Logger) LoginFailedWrongPassword(ctx context.Context, r *http.Request, userID primitive.ObjectID, email string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailedWrongPassword,
		UserID:        &userID,
		IP:            ratelimit.ClientIP(r),
		UserAgent:     r.UserAgent(),
		Success:       false,
		FailureReason: "wrong password",
		Details:       map[string]string{"email": email},
	})
}

// LoginFailedRateLimit logs a login attempt blocked by rate limiting.
func (l *Logger) LoginFailedRateLimit(ctx context.Context, r *http.Request, email string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailedRateLimit,
		IP:            ratelimit.ClientIP(r),
		UserAgent:     r.UserAgent(),
		Success:       false,
		FailureReason: "rate limit exceeded",
		Details:       map[string]string{"email": email},
	})
}

// PasswordChanged logs a password change by a signed-in user.
func (l *Logger) PasswordChanged(ctx context.Context, r *http.Request, userID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventPasswordChanged,
		UserID:    &userID,
		IP:        ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
	})
}

// PasswordResetRequested logs a forgot-password request.
func (l *Logger) PasswordResetRequested(ctx context.Context, r *http.Request, userID primitive.ObjectID, email string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventPasswordResetRequested,
		UserID:    &userID,
		IP:        ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details:   map[string]string{"email": email},
	})
}

// PasswordResetCompleted logs a password reset via emailed token.
func (l *Logger) PasswordResetCompleted(ctx context.Context, r *http.Request, userID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventPasswordResetCompleted,
		UserID:    &userID,
		IP:        ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
	})
}

// --- Project Events ---

// ProjectCreated logs a new project.
func (l *Logger) ProjectCreated(ctx context.Context, r *http.Request, actorID, projectID primitive.ObjectID, projectName string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryProject,
		EventType: audit.EventProjectCreated,
		ActorID:   &actorID,
		ProjectID: &projectID,
		IP:        ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details:   map[string]string{"project_name": projectName},
	})
}

// ProjectUpdated logs a project metadata update.
func (l *Logger) ProjectUpdated(ctx context.Context, r *http.Request, actorID, projectID primitive.ObjectID, fieldsChanged string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryProject,
		EventType: audit.EventProjectUpdated,
		ActorID:   &actorID,
		ProjectID: &projectID,
		IP:        ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details:   map[string]string{"fields_changed": fieldsChanged},
	})
}

// ProjectDeleted logs a project deletion, including how many bugs were
// removed with it.
func (l *Logger) ProjectDeleted(ctx context.Context, r *http.Request, actorID, projectID primitive.ObjectID, projectName string, bugsDeleted int64) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryProject,
		EventType: audit.EventProjectDeleted,
		ActorID:   &actorID,
		ProjectID: &projectID,
		IP:        ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details: map[string]string{
			"project_name": projectName,
			"bugs_deleted": int64ToString(bugsDeleted),
		},
	})
}

// MemberAdded logs a user being added to a project.
func (l *Logger) MemberAdded(ctx context.Context, r *http.Request, actorID, targetUserID, projectID primitive.ObjectID, memberRole string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryProject,
		EventType: audit.EventMemberAdded,
		ActorID:   &actorID,
		UserID:    &targetUserID,
		ProjectID: &projectID,
		IP:        ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details:   map[string]string{"member_role": memberRole},
	})
}

// MemberRemoved logs a user being removed from a project.
func (l *Logger) MemberRemoved(ctx context.Context, r *http.Request, actorID, targetUserID, projectID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryProject,
		EventType: audit.EventMemberRemoved,
		ActorID:   &actorID,
		UserID:    &targetUserID,
		ProjectID: &projectID,
		IP:        ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
	})
}

// --- Bug Events ---

// BugCreated logs a new bug report.
func (l *Logger) BugCreated(ctx context.Context, r *http.Request, actorID, bugID, projectID primitive.ObjectID, title string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryBug,
		EventType: audit.EventBugCreated,
		ActorID:   &actorID,
		BugID:     &bugID,
		ProjectID: &projectID,
		IP:        ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details:   map[string]string{"title": title},
	})
}

// BugUpdated logs a bug field update.
func (l *Logger) BugUpdated(ctx context.Context, r *http.Request, actorID, bugID, projectID primitive.ObjectID, fieldsChanged string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryBug,
		EventType: audit.EventBugUpdated,
		ActorID:   &actorID,
		BugID:     &bugID,
		ProjectID: &projectID,
		IP:        ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details:   map[string]string{"fields_changed": fieldsChanged},
	})
}

// BugAssigned logs a bug assignment. assigneeID is nil when the bug is
// unassigned.
func (l *Logger) BugAssigned(ctx context.Context, r *http.Request, actorID, bugID, projectID primitive.ObjectID, assigneeID *primitive.ObjectID) {
	details := map[string]string{"assignee": "none"}
	if assigneeID != nil {
		details["assignee"] = assigneeID.Hex()
	}
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryBug,
		EventType: audit.EventBugAssigned,
		ActorID:   &actorID,
		UserID:    assigneeID,
		BugID:     &bugID,
		ProjectID: &projectID,
		IP:        ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details:   details,
	})
}

// BugCommented logs a comment added to a bug.
func (l *Logger) BugCommented(ctx context.Context, r *http.Request, actorID, bugID, projectID primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryBug,
		EventType: audit.EventBugCommented,
		ActorID:   &actorID,
		BugID:     &bugID,
		ProjectID: &projectID,
		IP:        ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
	})
}

// BugDeleted logs a bug deletion.
func (l *Logger) BugDeleted(ctx context.Context, r *http.Request, actorID, bugID, projectID primitive.ObjectID, title string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryBug,
		EventType: audit.EventBugDeleted,
		ActorID:   &actorID,
		BugID:     &bugID,
		ProjectID: &projectID,
		IP:        ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details:   map[string]string{"title": title},
	})
}

func int64ToString(n int64) string {
	return strconv.FormatInt(n, 10)
}
