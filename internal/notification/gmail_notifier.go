package notification

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/mikeyg42/motionwatch/internal/config"
	"github.com/mikeyg42/motionwatch/internal/crypto"
)

const (
	defaultOAuthTimeout = 5 * time.Minute
	defaultSendTimeout  = 30 * time.Second

	// Token file permissions (owner read/write only)
	tokenFilePerms = 0600
)

// ErrNoToken means the Gmail authorization flow has not been run yet.
var ErrNoToken = errors.New("no stored Gmail token; run the gmail-auth command first")

// GmailNotifier sends alerts through the Gmail API using a stored OAuth2
// token with the send-only scope.
type GmailNotifier struct {
	svc        *gmail.Service
	from       string
	to         string
	systemName string
	retry      config.RetryConfig
	logger     *zap.Logger
}

// GmailOAuthConfig returns the OAuth2 client configuration for cfg.
func GmailOAuthConfig(cfg config.GmailOAuth2Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{gmail.GmailSendScope},
	}
}

// NewGmailNotifier loads the stored token and builds the Gmail client. It
// never starts the interactive flow; see Authorize.
func NewGmailNotifier(ctx context.Context, cfg config.NotificationConfig, logger *zap.Logger) (*GmailNotifier, error) {
	if cfg.Gmail.ClientID == "" || cfg.Gmail.ClientSecret == "" {
		return nil, fmt.Errorf("Gmail OAuth2 client ID and secret are required")
	}
	if cfg.ToEmail == "" {
		return nil, fmt.Errorf("notification email address is required")
	}

	token, err := LoadToken(cfg.Gmail.TokenStorePath, cfg.Gmail.TokenKey)
	if err != nil {
		return nil, err
	}

	httpClient := GmailOAuthConfig(cfg.Gmail).Client(ctx, token)
	httpClient.Timeout = defaultSendTimeout

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to init Gmail service: %w", err)
	}
	return newGmailNotifier(svc, cfg, logger), nil
}

func newGmailNotifier(svc *gmail.Service, cfg config.NotificationConfig, logger *zap.Logger) *GmailNotifier {
	from := strings.TrimSpace(cfg.Gmail.FromEmail)
	if from == "" {
		// Gmail substitutes the authenticated account.
		from = "me"
	}
	return &GmailNotifier{
		svc:        svc,
		from:       from,
		to:         cfg.ToEmail,
		systemName: cfg.SystemName,
		retry:      cfg.Retry,
		logger:     logger.Named("gmail"),
	}
}

func (n *GmailNotifier) Send(ctx context.Context, alert Alert) error {
	email, err := RenderEmail(alert, n.systemName, n.from, n.to)
	if err != nil {
		return &DeliveryError{Method: "gmail", CameraID: alert.CameraID, Err: err}
	}
	raw, err := BuildMIMEMessage(email)
	if err != nil {
		return &DeliveryError{Method: "gmail", CameraID: alert.CameraID, Err: err}
	}

	err = SendWithRetry(ctx, n.retry, func(ctx context.Context) error {
		err := n.sendRaw(ctx, raw)
		if err == nil {
			return nil
		}
		n.logger.Warn("Gmail send attempt failed", zap.String("camera", alert.CameraID), zap.Error(err))
		var gErr *googleapi.Error
		if errors.As(err, &gErr) && gErr.Code >= 400 && gErr.Code < 500 && gErr.Code != http.StatusTooManyRequests {
			return permanent(err)
		}
		return err
	})
	if err != nil {
		return &DeliveryError{Method: "gmail", CameraID: alert.CameraID, Err: err}
	}

	n.logger.Info("Alert sent", zap.String("camera", alert.CameraID), zap.String("to", n.to))
	return nil
}

func (n *GmailNotifier) Close() error { return nil }

// sendRaw sends raw email message via Gmail API
func (n *GmailNotifier) sendRaw(ctx context.Context, raw []byte) error {
	encoded := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(raw)

	_, err := n.svc.Users.Messages.Send("me", &gmail.Message{Raw: encoded}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gmail send failed: %w", err)
	}
	return nil
}

// --- Token storage ---

type tokenFile struct {
	Token     *oauth2.Token `json:"token"`
	CreatedAt time.Time     `json:"created_at"`
}

// LoadToken reads the token written by SaveToken. A sealed file needs the
// same key it was written with.
func LoadToken(path, key string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	if crypto.IsSealed(data) {
		if key == "" {
			return nil, fmt.Errorf("token file %s is sealed but no token key is configured", path)
		}
		if data, err = crypto.Open(data, key); err != nil {
			return nil, fmt.Errorf("failed to unseal token: %w", err)
		}
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if tf.Token == nil || (tf.Token.AccessToken == "" && tf.Token.RefreshToken == "") {
		return nil, fmt.Errorf("invalid token: missing access and refresh tokens")
	}
	return tf.Token, nil
}

// SaveToken writes token to path with owner-only permissions, sealed when
// key is set.
func SaveToken(path string, token *oauth2.Token, key string) error {
	data, err := json.Marshal(tokenFile{Token: token, CreatedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if key != "" {
		if data, err = crypto.Seal(data, key); err != nil {
			return fmt.Errorf("failed to seal token: %w", err)
		}
	}
	if err := os.WriteFile(path, data, tokenFilePerms); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// --- Interactive authorization ---

// Authorize runs the browser consent flow once and stores the resulting
// token. Instructions are written to out.
func Authorize(ctx context.Context, cfg config.GmailOAuth2Config, out io.Writer) error {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return fmt.Errorf("Gmail OAuth2 client ID and secret are required")
	}

	oauthCfg := GmailOAuthConfig(cfg)
	token, err := runInteractiveOAuth(ctx, oauthCfg, out)
	if err != nil {
		return fmt.Errorf("failed OAuth2 flow: %w", err)
	}
	return SaveToken(cfg.TokenStorePath, token, cfg.TokenKey)
}

func runInteractiveOAuth(ctx context.Context, cfg *oauth2.Config, out io.Writer) (*oauth2.Token, error) {
	parsedURL, err := url.Parse(cfg.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL: %w", err)
	}
	callbackPath := parsedURL.Path

	listener, err := net.Listen("tcp", parsedURL.Host)
	if err != nil {
		// Port in use, fall back to a random one.
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, fmt.Errorf("failed to bind OAuth callback listener: %w", err)
		}
		parsedURL.Host = listener.Addr().String()
		cfg.RedirectURL = parsedURL.String()
	}
	defer listener.Close()

	state, err := generateSecureState()
	if err != nil {
		return nil, err
	}

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	_ = openBrowser(authURL)

	fmt.Fprintf(out, "\n=== Gmail OAuth Setup ===\n")
	fmt.Fprintf(out, "Please visit this URL to authorize sending:\n\n%s\n\n", authURL)
	fmt.Fprintf(out, "Waiting for authorization...\n")

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	srv := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != callbackPath {
				http.NotFound(w, r)
				return
			}
			if r.FormValue("state") != state {
				http.Error(w, "Invalid state parameter", http.StatusBadRequest)
				errCh <- fmt.Errorf("OAuth state mismatch")
				return
			}
			if errMsg := r.FormValue("error"); errMsg != "" {
				http.Error(w, "Authorization failed: "+errMsg, http.StatusBadRequest)
				errCh <- fmt.Errorf("OAuth provider error: %s", errMsg)
				return
			}
			code := r.FormValue("code")
			if code == "" {
				http.Error(w, "Missing authorization code", http.StatusBadRequest)
				errCh <- fmt.Errorf("missing OAuth authorization code")
				return
			}
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><body><h1>Authorization successful</h1><p>You can close this window.</p></body></html>`)
			codeCh <- code
		}),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go srv.Serve(listener)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, defaultOAuthTimeout)
	defer cancel()

	var code string
	select {
	case <-timeoutCtx.Done():
		return nil, fmt.Errorf("OAuth authorization timeout")
	case err := <-errCh:
		return nil, err
	case code = <-codeCh:
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	fmt.Fprintf(out, "\n=== Authorization Complete ===\n\n")
	return tok, nil
}

func generateSecureState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random state: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// openBrowser is best effort; the URL is always printed as well.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
