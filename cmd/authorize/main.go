// Command authorize runs the one-time OAuth2 authorization-code flow with
// PKCE and stores the resulting user token pair for the bridge to use.
//
// It prints the grant URL, waits for the provider to redirect the browser
// to the local callback, exchanges the code, and writes the token file.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/LunaSea00/tg-twitter-sync/internal/auth"
	"github.com/LunaSea00/tg-twitter-sync/internal/config"
)

const exchangeTimeout = 5 * time.Minute

type callbackResult struct {
	code  string
	state string
	err   error
}

func main() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()})))

	if cfg.Credentials.OAuth2ClientID == "" {
		slog.Error("OAUTH2_CLIENT_ID is required for authorization")
		os.Exit(1)
	}
	redirect, err := url.Parse(cfg.Credentials.RedirectURI)
	if err != nil || redirect.Host == "" {
		slog.Error("OAUTH2_REDIRECT_URI must be a valid URL", "value", cfg.Credentials.RedirectURI)
		os.Exit(1)
	}

	flow := auth.NewPKCEFlow(cfg.Credentials.OAuth2ClientID, cfg.Credentials.OAuth2Secret, cfg.Credentials.RedirectURI)

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if errMsg := q.Get("error"); errMsg != "" {
			http.Error(w, "Authorization denied.", http.StatusBadRequest)
			results <- callbackResult{err: fmt.Errorf("authorization denied: %s", errMsg)}
			return
		}
		fmt.Fprintln(w, "Authorization received. You can close this tab.")
		results <- callbackResult{code: q.Get("code"), state: q.Get("state")}
	})
	srv := &http.Server{Addr: redirect.Host, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			results <- callbackResult{err: fmt.Errorf("callback server: %w", err)}
		}
	}()

	fmt.Println("Open this URL in your browser and grant access:")
	fmt.Println()
	fmt.Println("  " + flow.AuthURL())
	fmt.Println()
	fmt.Printf("Waiting for the callback on %s ...\n", cfg.Credentials.RedirectURI)

	ctx, cancel := context.WithTimeout(context.Background(), exchangeTimeout)
	defer cancel()

	var res callbackResult
	select {
	case res = <-results:
	case <-ctx.Done():
		slog.Error("timed out waiting for the authorization callback")
		os.Exit(1)
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	srv.Shutdown(shutdownCtx)
	shutdownCancel()

	if res.err != nil {
		slog.Error("authorization failed", "error", res.err)
		os.Exit(1)
	}
	if res.state != flow.State() {
		slog.Error("state mismatch in callback, possible CSRF, aborting")
		os.Exit(1)
	}
	if res.code == "" {
		slog.Error("callback carried no authorization code")
		os.Exit(1)
	}

	pair, err := flow.Exchange(ctx, res.code)
	if err != nil {
		slog.Error("code exchange failed", "error", err)
		os.Exit(1)
	}

	store := auth.NewFileTokenStore(cfg.TokenFile)
	if err := store.Save(pair); err != nil {
		slog.Error("could not persist token pair", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Token pair stored in %s (expires %s).\n", cfg.TokenFile, pair.ExpiresAt.Format(time.RFC3339))
	fmt.Println("DM mirroring is now available, restart the bridge to pick it up.")
}
