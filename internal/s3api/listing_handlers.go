package s3api

import (
	"net/http"
	"strconv"

	"s3box/internal/storage"
)

func parseMaxKeys(q map[string][]string) int {
	if vals, ok := q["max-keys"]; ok && len(vals) > 0 {
		if n, err := strconv.Atoi(vals[0]); err == nil {
			return n
		}
	}
	return 1000
}

func toObjectSummaries(entries []storage.ListEntry) ([]ObjectSummary, []CommonPrefixEntry) {
	var objs []ObjectSummary
	var prefixes []CommonPrefixEntry
	for _, e := range entries {
		if e.IsPrefix {
			prefixes = append(prefixes, CommonPrefixEntry{Prefix: e.Prefix})
			continue
		}
		objs = append(objs, ObjectSummary{
			Key:          e.Object.Key,
			LastModified: iso8601(e.Object.LastModified),
			ETag:         e.Object.ETag,
			Size:         e.Object.Size,
			StorageClass: "STANDARD",
		})
	}
	return objs, prefixes
}

func (s *Server) handleListObjectsV1(w http.ResponseWriter, r *http.Request, bucket string) {
	if _, ok := s.authenticate(w, r, actionListObjects, bucketResource(bucket)); !ok {
		return
	}
	q := r.URL.Query()
	opts := storage.ListOptions{
		Prefix:    q.Get("prefix"),
		Delimiter: q.Get("delimiter"),
		Marker:    q.Get("marker"),
		MaxKeys:   parseMaxKeys(q),
	}
	result, err := s.store.ListObjects(bucket, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	objs, prefixes := toObjectSummaries(result.Entries)

	resp := ListBucketResult{
		Xmlns:          xmlNamespace,
		Name:           bucket,
		Prefix:         opts.Prefix,
		Marker:         opts.Marker,
		NextMarker:     result.NextMarker,
		MaxKeys:        opts.MaxKeys,
		Delimiter:      opts.Delimiter,
		IsTruncated:    result.IsTruncated,
		Contents:       objs,
		CommonPrefixes: prefixes,
	}
	writeXML(w, http.StatusOK, resp)
}

func (s *Server) handleListObjectsV2(w http.ResponseWriter, r *http.Request, bucket string) {
	if _, ok := s.authenticate(w, r, actionListObjects, bucketResource(bucket)); !ok {
		return
	}
	q := r.URL.Query()
	opts := storage.ListOptions{
		Prefix:            q.Get("prefix"),
		Delimiter:         q.Get("delimiter"),
		ContinuationToken: q.Get("continuation-token"),
		StartAfter:        q.Get("start-after"),
		MaxKeys:           parseMaxKeys(q),
	}
	result, err := s.store.ListObjects(bucket, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	objs, prefixes := toObjectSummaries(result.Entries)

	resp := ListBucketResultV2{
		Xmlns:                 xmlNamespace,
		Name:                  bucket,
		Prefix:                opts.Prefix,
		StartAfter:            opts.StartAfter,
		ContinuationToken:     opts.ContinuationToken,
		NextContinuationToken: result.NextContinuationToken,
		KeyCount:              result.KeyCount,
		MaxKeys:               opts.MaxKeys,
		Delimiter:             opts.Delimiter,
		IsTruncated:           result.IsTruncated,
		Contents:              objs,
		CommonPrefixes:        prefixes,
	}
	writeXML(w, http.StatusOK, resp)
}

func (s *Server) handleListMultipartUploads(w http.ResponseWriter, r *http.Request, bucket string) {
	if _, ok := s.authenticate(w, r, actionListMultipartUploads, bucketResource(bucket)); !ok {
		return
	}
	uploads, err := s.store.ListMultipartUploads(bucket)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := ListMultipartUploadsResult{Xmlns: xmlNamespace, Bucket: bucket}
	for _, u := range uploads {
		resp.Upload = append(resp.Upload, MultipartUploadEntry{
			Key:       u.Key,
			UploadID:  u.UploadID,
			Initiated: iso8601(u.Initiated),
		})
	}
	writeXML(w, http.StatusOK, resp)
}
