package s3api

import "net/http"

// mux builds the Go 1.22+ pattern-routed ServeMux, following eteran-silo's
// internal/silo/router.go Handler() layout: one route per
// (method, bucket-level|object-level) pair, with query-shape dispatch
// happening inside each handler per spec.md's operation classification
// table.
func (s *Server) mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", s.handleRoot)

	mux.HandleFunc("GET /{bucket}", s.withCORS(s.handleBucketGet))
	mux.HandleFunc("PUT /{bucket}", s.withCORS(s.handleBucketPut))
	mux.HandleFunc("DELETE /{bucket}", s.withCORS(s.handleBucketDelete))
	mux.HandleFunc("HEAD /{bucket}", s.withCORS(s.handleBucketHead))
	mux.HandleFunc("POST /{bucket}", s.withCORS(s.handleBucketPost))

	mux.HandleFunc("GET /{bucket}/{key...}", s.withCORS(s.handleObjectGet))
	mux.HandleFunc("PUT /{bucket}/{key...}", s.withCORS(s.handleObjectPut))
	mux.HandleFunc("DELETE /{bucket}/{key...}", s.withCORS(s.handleObjectDelete))
	mux.HandleFunc("HEAD /{bucket}/{key...}", s.withCORS(s.handleObjectHead))
	mux.HandleFunc("POST /{bucket}/{key...}", s.withCORS(s.handleObjectPost))
	mux.HandleFunc("OPTIONS /{bucket}/{key...}", s.handleCorsPreflight)

	return mux
}
