package dig_container

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/klunity/klunity/apps/api/echo"
	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/contact"
	"github.com/klunity/klunity/core/message"
	"github.com/klunity/klunity/core/moderation"
	"github.com/klunity/klunity/core/newsletter"
	"github.com/klunity/klunity/core/notification"
	"github.com/klunity/klunity/core/social"
	"github.com/klunity/klunity/core/story"
	"github.com/klunity/klunity/core/user"
	emailsvc "github.com/klunity/klunity/services/email"
	logsvc "github.com/klunity/klunity/services/logger"
	"github.com/klunity/klunity/services/metrics"
	"github.com/klunity/klunity/services/realtime"
	"github.com/klunity/klunity/storage/database"
	inmemdb "github.com/klunity/klunity/storage/database/inmem"
	pgrepos "github.com/klunity/klunity/storage/database/postgres"
	mediastore "github.com/klunity/klunity/storage/media"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Storage holds the repositories of the configured database engine.
// DB is nil when the data lives in memory.
type Storage struct {
	dig.Out

	DB            *sqlx.DB
	Tx            core.Transactor
	Users         user.Repository
	Social        social.Repository
	Notifications notification.Repository
	Messages      message.Repository
	Stories       story.Repository
	Words         moderation.Repository
	Contacts      contact.Repository
	Subscriptions newsletter.Repository
}

func newLogger(conf *core.Config) (core.Logger, error) {
	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		return nil, err
	}
	return logsvc.NewRollbarLogger(zl.Named("api"), conf), nil
}

func newDBLogger(conf *core.Config) (core.Logger, error) {
	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		return nil, err
	}
	return logsvc.NewRollbarLogger(zl.Named("db").WithOptions(zap.AddStacktrace(zap.ErrorLevel)), conf), nil
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) Storage {
	if conf.Database.InMemory() {
		loggerParam.Logger.Info("using the in-memory database")
		db := inmemdb.Open()
		return Storage{
			Tx:            db,
			Users:         inmemdb.NewUserRepository(db),
			Social:        inmemdb.NewSocialRepository(db),
			Notifications: inmemdb.NewNotificationRepository(db),
			Messages:      inmemdb.NewMessageRepository(db),
			Stories:       inmemdb.NewStoryRepository(db),
			Words:         inmemdb.NewModerationRepository(db),
			Contacts:      inmemdb.NewContactRepository(db),
			Subscriptions: inmemdb.NewNewsletterRepository(db),
		}
	}

	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return Storage{
		DB:            db,
		Tx:            database.NewTransactor(db),
		Users:         pgrepos.NewUserRepository(db),
		Social:        pgrepos.NewSocialRepository(db),
		Notifications: pgrepos.NewNotificationRepository(db),
		Messages:      pgrepos.NewMessageRepository(db),
		Stories:       pgrepos.NewStoryRepository(db),
		Words:         pgrepos.NewModerationRepository(db),
		Contacts:      pgrepos.NewContactRepository(db),
		Subscriptions: pgrepos.NewNewsletterRepository(db),
	}
}

// newPublisher counts the events pushed through the hub.
func newPublisher(hub *realtime.Hub, mtr *metrics.Metrics) core.Publisher {
	mtr.WatchConnections(hub.Connections)
	return mtr.Publisher(hub)
}

func newNotificationService(repo notification.Repository, usrSvc *user.Service, pub core.Publisher) *notification.Service {
	return notification.NewService(repo, usrSvc, pub)
}

func newSocialService(repo social.Repository, tx core.Transactor, usrSvc *user.Service, notifSvc *notification.Service) *social.Service {
	return social.NewService(repo, tx, usrSvc, notifSvc)
}

func newMessageService(
	repo message.Repository,
	usrSvc *user.Service,
	socialSvc *social.Service,
	modSvc *moderation.Service,
	pub core.Publisher,
) *message.Service {
	return message.NewService(repo, usrSvc, socialSvc, modSvc, pub)
}

func newStoryService(repo story.Repository, usrSvc *user.Service, modSvc *moderation.Service) *story.Service {
	return story.NewService(repo, usrSvc, modSvc)
}

// newShutdownChannel relays the interrupt and terminate signals.
func newShutdownChannel() chan os.Signal {
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	return shutdown
}

type serverParams struct {
	dig.In

	Conf          *core.Config
	Logger        core.Logger
	Validate      *validator.Validate
	Translator    ut.Translator
	UserSvc       *user.Service
	SocialSvc     *social.Service
	NotifSvc      *notification.Service
	MessageSvc    *message.Service
	StorySvc      *story.Service
	ModerationSvc *moderation.Service
	ContactSvc    *contact.Service
	NewsletterSvc *newsletter.Service
	Media         *mediastore.Store
	Hub           *realtime.Hub
	Upgrader      *websocket.Upgrader
	Metrics       *metrics.Metrics
	Shutdown      chan os.Signal
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(p.Conf.Server.Address, p.Shutdown, &echoapi.Deps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Validate:      p.Validate,
		Translator:    p.Translator,
		UserSvc:       p.UserSvc,
		SocialSvc:     p.SocialSvc,
		NotifSvc:      p.NotifSvc,
		MessageSvc:    p.MessageSvc,
		StorySvc:      p.StorySvc,
		ModerationSvc: p.ModerationSvc,
		ContactSvc:    p.ContactSvc,
		NewsletterSvc: p.NewsletterSvc,
		Media:         p.Media,
		Hub:           p.Hub,
		Upgrader:      p.Upgrader,
		Metrics:       p.Metrics,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(emailsvc.NewService))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(metrics.New))
	must(c.Provide(realtime.NewHub))
	must(c.Provide(realtime.NewUpgrader))
	must(c.Provide(newPublisher))
	must(c.Provide(mediastore.NewStore))

	must(c.Provide(user.NewService))
	must(c.Provide(moderation.NewService))
	must(c.Provide(newNotificationService))
	must(c.Provide(newSocialService))
	must(c.Provide(newMessageService))
	must(c.Provide(newStoryService))
	must(c.Provide(contact.NewService))
	must(c.Provide(newsletter.NewService))

	must(c.Provide(newShutdownChannel))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
