package echoapi_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	. "github.com/klunity/klunity/apps/api/echo"
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
	inmemdb "github.com/klunity/klunity/storage/database/inmem"
	mediastore "github.com/klunity/klunity/storage/media"
	"github.com/klunity/klunity/testutil"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testEnv struct {
	app        *Server
	conf       *core.Config
	usrRepo    user.Repository
	socialRepo social.Repository
	storyRepo  story.Repository
	hub        *realtime.Hub
	metrics    *metrics.Metrics
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	conf := core.NewTestConfig()
	conf.MediaDir = t.TempDir()
	logger := logsvc.NewRollbarLogger(zap.NewNop(), conf)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	core.ParseEmailTemplates(conf, logger)
	emailsvc.ResetSentMessages()

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	socialRepo := inmemdb.NewSocialRepository(db)
	storyRepo := inmemdb.NewStoryRepository(db)

	// set up services
	hub := realtime.NewHub(logger)
	mtr := metrics.New()
	pub := mtr.Publisher(hub)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	modSvc := moderation.NewService(inmemdb.NewModerationRepository(db))
	notifSvc := notification.NewService(inmemdb.NewNotificationRepository(db), usrSvc, pub)
	socialSvc := social.NewService(socialRepo, db, usrSvc, notifSvc)
	msgSvc := message.NewService(inmemdb.NewMessageRepository(db), usrSvc, socialSvc, modSvc, pub)
	media, err := mediastore.NewStore(conf)
	require.NoError(t, err)

	app := NewServer(
		"",                      /* addr */
		make(chan os.Signal, 1), /* shutdown */
		&Deps{
			Conf:          conf,
			Logger:        logger,
			Validate:      validate,
			Translator:    translator,
			UserSvc:       usrSvc,
			SocialSvc:     socialSvc,
			NotifSvc:      notifSvc,
			MessageSvc:    msgSvc,
			StorySvc:      story.NewService(storyRepo, usrSvc, modSvc),
			ModerationSvc: modSvc,
			ContactSvc:    contact.NewService(inmemdb.NewContactRepository(db)),
			NewsletterSvc: newsletter.NewService(inmemdb.NewNewsletterRepository(db)),
			Media:         media,
			Hub:           hub,
			Upgrader:      realtime.NewUpgrader(conf),
			Metrics:       mtr,
		},
	)
	t.Cleanup(hub.Close)

	return &testEnv{
		app:        app,
		conf:       conf,
		usrRepo:    usrRepo,
		socialRepo: socialRepo,
		storyRepo:  storyRepo,
		hub:        hub,
		metrics:    mtr,
	}
}

func (env *testEnv) createUser(t *testing.T, name, uname, role string) user.User {
	return testutil.CreateUser(t, env.usrRepo, name, uname, uname+"@kluniversity.in", role, true)
}

func (env *testEnv) token(t *testing.T, usr user.User) string {
	token, err := GenerateToken(GetUserClaims(usr, env.conf), env.conf)
	if err != nil {
		t.Fatalf("token(): %v", err)
	}
	return token
}

func (env *testEnv) serve(req *http.Request, rec *httptest.ResponseRecorder) {
	env.app.ServeHTTP(rec, req)
}

// run executes the table against the app.
func (env *testEnv) run(t *testing.T, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			env.serve(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func newMultipartRequest(t *testing.T, path, token string, fields map[string]string, fileField, filename string, content []byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode(%s): %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	assert.Equal(t, tt.wantCode, rec.Code, "body: %s", rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// lastOTP returns the code mailed by the latest OTP email.
func lastOTP(t *testing.T) string {
	msg, ok := emailsvc.LastSentMessage()
	require.True(t, ok, "no email sent")
	data, ok := msg.TemplateData.(user.OTPMailData)
	require.True(t, ok, "latest email is not an OTP email")
	return data.Code
}
