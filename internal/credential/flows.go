package credential

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
)

// defaultPollInterval is used when the device authorization response does
// not specify one.
const defaultPollInterval = 5 * time.Second

// DeviceAuth holds the device code response fields shown to the user.
type DeviceAuth struct {
	UserCode        string
	VerificationURI string
}

// DeviceCodeFlow returns an InteractiveFlow that runs the OAuth2 device code
// grant: request a code, show it via display, then poll the token endpoint
// until the user completes authorization or the code expires.
func DeviceCodeFlow(display func(DeviceAuth), logger *slog.Logger) InteractiveFlow {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
		logger.Info("starting device code auth flow")

		da, err := cfg.DeviceAuth(ctx)
		if err != nil {
			return nil, fmt.Errorf("credential: device auth request failed: %w", err)
		}

		if da.Interval == 0 {
			da.Interval = int64(defaultPollInterval / time.Second)
		}

		logger.Info("device code received, waiting for user authorization",
			slog.Int64("poll_interval_s", da.Interval),
		)

		display(DeviceAuth{
			UserCode:        da.UserCode,
			VerificationURI: da.VerificationURI,
		})

		tok, err := cfg.DeviceAccessToken(ctx, da)
		if err != nil {
			return nil, fmt.Errorf("credential: device code authorization failed: %w", err)
		}

		return tok, nil
	}
}

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// callbackPath is the HTTP path the OAuth2 redirect hits on the local server.
const callbackPath = "/"

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

// callbackResult carries the authorization code or error from the callback handler.
type callbackResult struct {
	code string
	err  error
}

// BrowserFlow returns an InteractiveFlow that runs the authorization code +
// PKCE grant against a loopback redirect:
//  1. Binds a localhost HTTP server on a random port
//  2. Calls openURL with the authorization URL (falls back to printing it)
//  3. Receives the callback with the authorization code
//  4. Exchanges the code for tokens using the PKCE verifier
func BrowserFlow(openURL func(string) error, logger *slog.Logger) InteractiveFlow {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, base *oauth2.Config) (*oauth2.Token, error) {
		logger.Info("starting browser auth flow (authorization code + PKCE)")

		resultCh := make(chan callbackResult, 1)
		mux := http.NewServeMux()

		srv, port, err := startCallbackServer(ctx, mux, resultCh, logger)
		if err != nil {
			return nil, err
		}

		defer shutdownCallbackServer(srv, logger)

		// The redirect URL depends on the port, so work on a copy.
		cfg := *base
		cfg.RedirectURL = fmt.Sprintf("http://localhost:%d", port)

		verifier := oauth2.GenerateVerifier()

		state, err := generateState()
		if err != nil {
			return nil, fmt.Errorf("credential: generating state token: %w", err)
		}

		registerCallbackHandler(mux, state, resultCh)

		authURL := cfg.AuthCodeURL(state,
			oauth2.AccessTypeOffline,
			oauth2.ApprovalForce,
			oauth2.S256ChallengeOption(verifier),
		)

		launchBrowser(authURL, openURL, logger)

		code, err := waitForCallback(ctx, resultCh)
		if err != nil {
			return nil, err
		}

		logger.Info("received authorization code, exchanging for token")

		tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
		if err != nil {
			return nil, fmt.Errorf("credential: token exchange failed: %w", err)
		}

		return tok, nil
	}
}

// startCallbackServer binds to 127.0.0.1:0 and serves mux. Returns the
// server and the bound port.
func startCallbackServer(
	ctx context.Context,
	mux *http.ServeMux,
	resultCh chan<- callbackResult,
	logger *slog.Logger,
) (*http.Server, int, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, fmt.Errorf("credential: binding localhost listener: %w", err)
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, 0, errors.New("credential: listener address is not TCP")
	}

	port := tcpAddr.Port
	logger.Info("callback server listening", slog.Int("port", port))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			select {
			case resultCh <- callbackResult{err: fmt.Errorf("credential: callback server error: %w", serveErr)}:
			default:
			}
		}
	}()

	return srv, port, nil
}

// registerCallbackHandler adds the callback route to the mux.
func registerCallbackHandler(mux *http.ServeMux, state string, resultCh chan<- callbackResult) {
	mux.HandleFunc("GET "+callbackPath, func(w http.ResponseWriter, r *http.Request) {
		handleOAuthCallback(w, r, state, resultCh)
	})
}

// handleOAuthCallback validates the state, extracts the code, and sends the result.
func handleOAuthCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	send := func(res callbackResult) {
		select {
		case resultCh <- res:
		default:
		}
	}

	if r.URL.Query().Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		send(callbackResult{err: errors.New("credential: OAuth2 state mismatch (possible CSRF)")})

		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		desc := r.URL.Query().Get("error_description")
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		send(callbackResult{err: fmt.Errorf("credential: authorization failed: %s: %s", errParam, desc)})

		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		send(callbackResult{err: errors.New("credential: callback missing authorization code")})

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Authentication successful</h1>"+
		"<p>You can close this window and return to the terminal.</p></body></html>")
	send(callbackResult{code: code})
}

func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// launchBrowser attempts to open the auth URL. If that fails the URL is
// printed to stderr so the user can copy it.
func launchBrowser(authURL string, openURL func(string) error, logger *slog.Logger) {
	logger.Info("opening browser for authorization")

	if openURL == nil {
		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
		return
	}

	if openErr := openURL(authURL); openErr != nil {
		logger.Warn("failed to open browser, printing URL",
			slog.String("error", openErr.Error()),
		)

		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
	}
}

// waitForCallback blocks until the callback fires or ctx is canceled.
func waitForCallback(ctx context.Context, resultCh <-chan callbackResult) (string, error) {
	select {
	case result := <-resultCh:
		if result.err != nil {
			return "", result.err
		}

		return result.code, nil
	case <-ctx.Done():
		return "", fmt.Errorf("credential: browser auth canceled: %w", ctx.Err())
	}
}

func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
