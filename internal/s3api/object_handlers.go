package s3api

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"s3box/internal/s3err"
	"s3box/internal/sigv4"
	"s3box/internal/storage"
)

func (s *Server) handleObjectGet(w http.ResponseWriter, r *http.Request) {
	bucket, key := r.PathValue("bucket"), r.PathValue("key")
	q := r.URL.Query()

	switch {
	case q.Has("tagging"):
		s.handleGetObjectTagging(w, r, bucket, key)
	case q.Has("uploadId"):
		s.handleListParts(w, r, bucket, key, q.Get("uploadId"))
	default:
		s.handleGetObject(w, r, bucket, key)
	}
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	if _, ok := s.authenticate(w, r, actionGetObject, keyResource(bucket, key)); !ok {
		return
	}
	if !s.checkACL(w, r, bucket) {
		return
	}

	body, info, err := s.store.GetObject(bucket, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("ETag", info.ETag)
	w.Header().Set("Last-Modified", rfc1123(info.LastModified))
	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, body)
		return
	}

	br, err := storage.ParseRange(rangeHeader, info.Size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := io.CopyN(io.Discard, body, br.Start); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Range", br.ContentRange(info.Size))
	w.Header().Set("Content-Length", strconv.FormatInt(br.Len(), 10))
	w.WriteHeader(http.StatusPartialContent)
	_, _ = io.CopyN(w, body, br.Len())
}

func (s *Server) handleGetObjectTagging(w http.ResponseWriter, r *http.Request, bucket, key string) {
	if _, ok := s.authenticate(w, r, actionGetObjectTagging, keyResource(bucket, key)); !ok {
		return
	}
	tags, err := s.store.GetObjectTagging(bucket, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeXML(w, http.StatusOK, tagsToXML(tags))
}

func (s *Server) handleListParts(w http.ResponseWriter, r *http.Request, bucket, key, uploadID string) {
	if _, ok := s.authenticate(w, r, actionListParts, keyResource(bucket, key)); !ok {
		return
	}
	parts, err := s.store.ListParts(bucket, uploadID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := ListPartsResult{Xmlns: xmlNamespace, Bucket: bucket, Key: key, UploadID: uploadID}
	for _, p := range parts {
		resp.Part = append(resp.Part, Part{PartNumber: p.Number, LastModified: iso8601(p.LastModified), ETag: p.ETag, Size: p.Size})
	}
	writeXML(w, http.StatusOK, resp)
}

func (s *Server) handleObjectHead(w http.ResponseWriter, r *http.Request) {
	bucket, key := r.PathValue("bucket"), r.PathValue("key")
	if _, ok := s.authenticate(w, r, actionHeadObject, keyResource(bucket, key)); !ok {
		return
	}
	if !s.checkACL(w, r, bucket) {
		return
	}
	info, err := s.store.HeadObject(bucket, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", info.ETag)
	w.Header().Set("Last-Modified", rfc1123(info.LastModified))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleObjectPut(w http.ResponseWriter, r *http.Request) {
	bucket, key := r.PathValue("bucket"), r.PathValue("key")
	q := r.URL.Query()

	switch {
	case q.Has("tagging"):
		s.handlePutObjectTagging(w, r, bucket, key)
	case q.Has("partNumber") && q.Has("uploadId"):
		s.handleUploadPart(w, r, bucket, key, q.Get("uploadId"), q.Get("partNumber"))
	case r.Header.Get("x-amz-copy-source") != "":
		s.handleCopyObject(w, r, bucket, key)
	default:
		s.handlePutObject(w, r, bucket, key)
	}
}

func (s *Server) handlePutObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	auth, ok := s.authenticate(w, r, actionPutObject, keyResource(bucket, key))
	if !ok {
		return
	}

	body := io.Reader(r.Body)
	if auth.Streaming {
		body = sigv4.NewChunkedReader(r.Body, auth.Result)
	}

	info, err := s.store.PutObject(bucket, key, body)
	if err != nil {
		if strings.Contains(err.Error(), "sigv4:") {
			s3err.Write(w, requestID(), s3err.ErrSignatureDoesNotMatch, r.URL.Path)
			return
		}
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", info.ETag)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePutObjectTagging(w http.ResponseWriter, r *http.Request, bucket, key string) {
	if _, ok := s.authenticate(w, r, actionPutObjectTagging, keyResource(bucket, key)); !ok {
		return
	}
	tags, err := decodeTagging(r.Body)
	if err != nil {
		s3err.Write(w, requestID(), s3err.ErrMalformedXML, r.URL.Path)
		return
	}
	if err := s.store.PutObjectTagging(bucket, key, tags); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleUploadPart(w http.ResponseWriter, r *http.Request, bucket, key, uploadID, partNumberStr string) {
	if _, ok := s.authenticate(w, r, actionUploadPart, keyResource(bucket, key)); !ok {
		return
	}
	partNumber, err := strconv.Atoi(partNumberStr)
	if err != nil {
		s3err.Write(w, requestID(), s3err.APIError{Code: "InvalidArgument", Message: "invalid partNumber", StatusCode: http.StatusBadRequest}, r.URL.Path)
		return
	}
	part, err := s.store.UploadPart(bucket, key, uploadID, partNumber, r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", part.ETag)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleCopyObject(w http.ResponseWriter, r *http.Request, dstBucket, dstKey string) {
	if _, ok := s.authenticate(w, r, actionCopyObject, keyResource(dstBucket, dstKey)); !ok {
		return
	}
	srcBucket, srcKey, err := parseCopySource(r.Header.Get("x-amz-copy-source"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	info, err := s.store.CopyObject(srcBucket, srcKey, dstBucket, dstKey)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeXML(w, http.StatusOK, CopyObjectResult{Xmlns: xmlNamespace, ETag: info.ETag, LastModified: iso8601(info.LastModified)})
}

func parseCopySource(source string) (bucket, key string, err error) {
	source = strings.TrimPrefix(source, "/")
	bucket, key, ok := strings.Cut(source, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", storage.ErrInvalidObjectKey
	}
	return bucket, key, nil
}

func (s *Server) handleObjectDelete(w http.ResponseWriter, r *http.Request) {
	bucket, key := r.PathValue("bucket"), r.PathValue("key")
	q := r.URL.Query()

	switch {
	case q.Has("tagging"):
		s.handleDeleteObjectTagging(w, r, bucket, key)
	case q.Has("uploadId"):
		s.handleAbortMultipart(w, r, bucket, key, q.Get("uploadId"))
	default:
		s.handleDeleteObject(w, r, bucket, key)
	}
}

func (s *Server) handleDeleteObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	if _, ok := s.authenticate(w, r, actionDeleteObject, keyResource(bucket, key)); !ok {
		return
	}
	if err := s.store.DeleteObject(bucket, key); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.DeleteObjectTagging(bucket, key); err != nil {
		slog.Warn("clearing tag sidecar on object delete", "bucket", bucket, "key", key, "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteObjectTagging(w http.ResponseWriter, r *http.Request, bucket, key string) {
	if _, ok := s.authenticate(w, r, actionDeleteObjectTagging, keyResource(bucket, key)); !ok {
		return
	}
	if err := s.store.DeleteObjectTagging(bucket, key); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAbortMultipart(w http.ResponseWriter, r *http.Request, bucket, key, uploadID string) {
	if _, ok := s.authenticate(w, r, actionAbortMultipart, keyResource(bucket, key)); !ok {
		return
	}
	if err := s.store.AbortMultipart(bucket, uploadID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleObjectPost(w http.ResponseWriter, r *http.Request) {
	bucket, key := r.PathValue("bucket"), r.PathValue("key")
	q := r.URL.Query()

	switch {
	case q.Has("uploads"):
		s.handleInitiateMultipart(w, r, bucket, key)
	case q.Has("uploadId"):
		s.handleCompleteMultipart(w, r, bucket, key, q.Get("uploadId"))
	default:
		s3err.Write(w, requestID(), s3err.ErrNotImplemented, r.URL.Path)
	}
}

func (s *Server) handleInitiateMultipart(w http.ResponseWriter, r *http.Request, bucket, key string) {
	auth, ok := s.authenticate(w, r, actionInitiateMultipart, keyResource(bucket, key))
	if !ok {
		return
	}
	contentType := r.Header.Get("Content-Type")
	uploadID, err := s.store.InitiateMultipart(bucket, key, contentType, auth.Identity.AccessKeyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeXML(w, http.StatusOK, InitiateMultipartUploadResult{Xmlns: xmlNamespace, Bucket: bucket, Key: key, UploadID: uploadID})
}

func (s *Server) handleCompleteMultipart(w http.ResponseWriter, r *http.Request, bucket, key, uploadID string) {
	if _, ok := s.authenticate(w, r, actionCompleteMultipart, keyResource(bucket, key)); !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req CompleteMultipartUploadRequest
	if err := decodeXML(body, &req); err != nil {
		s3err.Write(w, requestID(), s3err.ErrMalformedXML, r.URL.Path)
		return
	}

	claimed := make([]storage.CompletedPart, 0, len(req.Part))
	for _, p := range req.Part {
		claimed = append(claimed, storage.CompletedPart{Number: p.PartNumber, ETag: p.ETag})
	}

	info, err := s.store.CompleteMultipart(bucket, key, uploadID, claimed)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeXML(w, http.StatusOK, CompleteMultipartUploadResult{
		Xmlns:    xmlNamespace,
		Location: "/" + bucket + "/" + key,
		Bucket:   bucket,
		Key:      key,
		ETag:     info.ETag,
	})
}
