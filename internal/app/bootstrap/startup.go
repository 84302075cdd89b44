// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/trackhub/internal/app/store/outbox"
	"github.com/dalemusser/trackhub/internal/app/store/users"
	"github.com/dalemusser/trackhub/internal/app/system/mailer"
	"github.com/dalemusser/trackhub/internal/app/system/notify"
	"github.com/dalemusser/trackhub/internal/app/system/tasks"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Background workers started here and stopped in Shutdown. WAFFLE's
// lifecycle hooks don't carry app state between Startup and Shutdown,
// so these live at package level.
var (
	mailDispatcher *notify.Dispatcher
	taskRunner     *tasks.Runner
)

// newMailSender builds the SMTP sender from app config. Both the
// forgot-password flow (direct send) and the outbox dispatcher use the
// same sender.
func newMailSender(appCfg AppConfig, logger *zap.Logger) mailer.Sender {
	return mailer.NewSMTPSender(mailer.Config{
		Host:     appCfg.MailSMTPHost,
		Port:     appCfg.MailSMTPPort,
		User:     appCfg.MailSMTPUser,
		Pass:     appCfg.MailSMTPPass,
		From:     appCfg.MailFrom,
		FromName: appCfg.MailFromName,
	}, logger)
}

// Startup runs one-time application initialization after DB connections
// and schema setup are complete, but before the HTTP handler is built.
// TrackHub starts its background workers here: the outbox dispatcher
// that delivers assignment email, and the maintenance task runner.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.MongoDatabase

	mailDispatcher = notify.NewDispatcher(outbox.New(db), newMailSender(appCfg, logger), logger, appCfg.OutboxInterval)
	mailDispatcher.Start()

	taskRunner = tasks.NewRunner(logger,
		tasks.ResetTokenCleanupJob(users.New(db), logger),
		tasks.OutboxPurgeJob(outbox.New(db), logger, appCfg.OutboxRetention),
	)
	taskRunner.Start()

	return nil
}
