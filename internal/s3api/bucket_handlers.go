package s3api

import (
	"io"
	"net/http"

	"s3box/internal/s3err"
	"s3box/internal/storage"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	auth, ok := s.authenticate(w, r, actionListBuckets, "*")
	if !ok {
		return
	}
	buckets, err := s.store.ListBuckets(auth.Identity.AccessKeyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var resp ListAllMyBucketsResult
	resp.Xmlns = xmlNamespace
	resp.Owner = Owner{ID: auth.Identity.AccessKeyID, DisplayName: auth.Identity.AccessKeyID}
	for _, b := range buckets {
		resp.Buckets.Bucket = append(resp.Buckets.Bucket, Bucket{Name: b.Name, CreationDate: iso8601(b.CreationDate)})
	}
	writeXML(w, http.StatusOK, resp)
}

func (s *Server) handleBucketGet(w http.ResponseWriter, r *http.Request) {
	bucket := r.PathValue("bucket")
	q := r.URL.Query()

	switch {
	case q.Has("location"):
		s.handleGetBucketLocation(w, r, bucket)
	case q.Has("tagging"):
		s.handleGetBucketTagging(w, r, bucket)
	case q.Has("uploads"):
		s.handleListMultipartUploads(w, r, bucket)
	case q.Get("list-type") == "2":
		s.handleListObjectsV2(w, r, bucket)
	default:
		s.handleListObjectsV1(w, r, bucket)
	}
}

func (s *Server) handleBucketPut(w http.ResponseWriter, r *http.Request) {
	bucket := r.PathValue("bucket")
	if r.URL.Query().Has("tagging") {
		s.handlePutBucketTagging(w, r, bucket)
		return
	}

	auth, ok := s.authenticate(w, r, actionCreateBucket, bucketResource(bucket))
	if !ok {
		return
	}
	err := s.store.CreateBucket(bucket, auth.Identity.AccessKeyID)
	switch {
	case err == nil, err == storage.ErrBucketAlreadyOwned:
		// BucketAlreadyOwnedByYou is 200 here: this server only ever
		// creates buckets in its single configured default region, which
		// is the case real S3 treats as non-conflicting.
		w.Header().Set("Location", "/"+bucket)
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, r, err)
	}
}

func (s *Server) handleBucketDelete(w http.ResponseWriter, r *http.Request) {
	bucket := r.PathValue("bucket")
	if r.URL.Query().Has("tagging") {
		s.handleDeleteBucketTagging(w, r, bucket)
		return
	}

	if _, ok := s.authenticate(w, r, actionDeleteBucket, bucketResource(bucket)); !ok {
		return
	}
	if err := s.store.DeleteBucket(bucket); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBucketHead(w http.ResponseWriter, r *http.Request) {
	bucket := r.PathValue("bucket")
	if _, ok := s.authenticate(w, r, actionHeadBucket, bucketResource(bucket)); !ok {
		return
	}
	if !s.store.BucketExists(bucket) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetBucketLocation(w http.ResponseWriter, r *http.Request, bucket string) {
	if _, ok := s.authenticate(w, r, actionGetBucketLocation, bucketResource(bucket)); !ok {
		return
	}
	meta, err := s.store.GetBucketMeta(bucket)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeXML(w, http.StatusOK, LocationConstraint{Xmlns: xmlNamespace, Value: meta.Region})
}

func (s *Server) handleGetBucketTagging(w http.ResponseWriter, r *http.Request, bucket string) {
	if _, ok := s.authenticate(w, r, actionGetBucketTagging, bucketResource(bucket)); !ok {
		return
	}
	tags, err := s.store.GetBucketTagging(bucket)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeXML(w, http.StatusOK, tagsToXML(tags))
}

func (s *Server) handlePutBucketTagging(w http.ResponseWriter, r *http.Request, bucket string) {
	if _, ok := s.authenticate(w, r, actionPutBucketTagging, bucketResource(bucket)); !ok {
		return
	}
	tags, err := decodeTagging(r.Body)
	if err != nil {
		s3err.Write(w, requestID(), s3err.ErrMalformedXML, r.URL.Path)
		return
	}
	if err := s.store.PutBucketTagging(bucket, tags); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDeleteBucketTagging(w http.ResponseWriter, r *http.Request, bucket string) {
	if _, ok := s.authenticate(w, r, actionDeleteBucketTagging, bucketResource(bucket)); !ok {
		return
	}
	if err := s.store.DeleteBucketTagging(bucket); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBucketPost only handles bulk DeleteObjects (POST /{bucket}?delete);
// no other bucket-level POST operation is in scope.
func (s *Server) handleBucketPost(w http.ResponseWriter, r *http.Request) {
	bucket := r.PathValue("bucket")
	if !r.URL.Query().Has("delete") {
		s3err.Write(w, requestID(), s3err.ErrNotImplemented, r.URL.Path)
		return
	}

	if _, ok := s.authenticate(w, r, actionDeleteObjects, bucketResource(bucket)); !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodeDeleteObjects(body)
	if err != nil {
		s3err.Write(w, requestID(), s3err.ErrMalformedXML, r.URL.Path)
		return
	}

	var result DeleteObjectsResult
	result.Xmlns = xmlNamespace
	for _, obj := range req.Object {
		if err := s.store.DeleteObject(bucket, obj.Key); err != nil {
			apiErr := s3err.MapError(err)
			result.Error = append(result.Error, DeleteErrorEntry{Key: obj.Key, Code: apiErr.Code, Message: apiErr.Message})
			continue
		}
		if !req.Quiet {
			result.Deleted = append(result.Deleted, DeletedEntry{Key: obj.Key})
		}
	}
	writeXML(w, http.StatusOK, result)
}
