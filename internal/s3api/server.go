package s3api

import (
	"context"
	"net/http"

	"s3box/internal/config"
	"s3box/internal/sigv4"
	"s3box/internal/storage"
)

// Server wires Storage and the SigV4 Verifier behind a single http.Handler.
// It owns no state of its own beyond those two collaborators and the
// immutable Config snapshot, following eteran-silo's Server{cfg, db}
// shape — db there, Storage here.
type Server struct {
	cfg      *config.Config
	store    *storage.Storage
	verifier *sigv4.Verifier
}

// NewServer constructs a Server over cfg, creating the storage root if
// necessary.
func NewServer(cfg *config.Config) (*Server, error) {
	store, err := storage.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:      cfg,
		store:    store,
		verifier: sigv4.NewVerifier(cfg),
	}, nil
}

// RunSweeper delegates to the Storage's multipart expiry sweeper; intended
// to run under the same errgroup.Context as the HTTP listener.
func (s *Server) RunSweeper(ctx context.Context) error {
	return s.store.RunSweeper(ctx)
}

// Close releases the Server's resources.
func (s *Server) Close() {
	s.store.Close()
}

// Handler returns the fully wired http.Handler, middleware included.
func (s *Server) Handler() http.Handler {
	return LogRequest(Recoverer(SlashFix(s.mux())))
}
