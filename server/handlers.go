package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"gmaps-scraper/geo"
	"gmaps-scraper/models"
	"gmaps-scraper/progress"
	"gmaps-scraper/scraper"
	"gmaps-scraper/storage"
)

type postcodesRequest struct {
	Location string `json:"location"`
}

type scrapeRequest struct {
	Query           string   `json:"query"`
	Postcodes       []string `json:"postcodes"`
	UploadSessionID string   `json:"upload_session_id"`
}

type removeUploadRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handlePostcodes(w http.ResponseWriter, r *http.Request) {
	var req postcodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Location) == "" {
		writeError(w, http.StatusBadRequest, "Location is required")
		return
	}

	outcodes, err := s.geo.Resolve(r.Context(), req.Location)
	if err != nil {
		if errors.Is(err, geo.ErrNoSuchLocation) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	payload := make([]map[string]any, 0, len(outcodes))
	for _, oc := range outcodes {
		payload = append(payload, map[string]any{
			"outcode":        oc.Outcode,
			"admin_district": oc.AdminDistrict,
			"latitude":       oc.Latitude,
			"longitude":      oc.Longitude,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"postcodes": payload,
		"location":  req.Location,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "upload too large or malformed")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".xlsx" && ext != ".xls" {
		writeError(w, http.StatusBadRequest, "Only .xlsx or .xls files are supported")
		return
	}

	sessionID := fmt.Sprintf("upload_%d", time.Now().UnixMilli())
	savePath := filepath.Join(s.cfg.UploadDir, sessionID+ext)
	if err := saveUpload(file, savePath); err != nil {
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}

	saved, err := os.Open(savePath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not read upload")
		return
	}
	listings, parseErr := storage.LoadBaseline(saved)
	saved.Close()
	if parseErr != nil {
		os.Remove(savePath)
		writeError(w, http.StatusBadRequest, "Could not parse file: "+parseErr.Error())
		return
	}

	s.mu.Lock()
	s.uploads[sessionID] = &upload{
		Filename: header.Filename,
		Path:     savePath,
		Listings: listings,
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, uploadSummary(sessionID, header.Filename, listings))
}

func (s *Server) handleUploadRemove(w http.ResponseWriter, r *http.Request) {
	var req removeUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	if up, ok := s.uploads[req.SessionID]; ok {
		os.Remove(up.Path)
		delete(s.uploads, req.SessionID)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Input errors surface here, before any session starts.
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "Search query is required")
		return
	}
	if len(req.Postcodes) == 0 {
		writeError(w, http.StatusBadRequest, "Select at least one postcode")
		return
	}

	var baseline []models.RawListing
	if req.UploadSessionID != "" {
		s.mu.Lock()
		up := s.uploads[req.UploadSessionID]
		s.mu.Unlock()
		if up == nil {
			writeError(w, http.StatusBadRequest, "unknown upload session")
			return
		}
		baseline = up.Listings
	}

	j := s.startJob(scraper.Request{
		Query:     req.Query,
		Postcodes: req.Postcodes,
		Baseline:  baseline,
	})

	writeJSON(w, http.StatusOK, map[string]any{"job_id": j.ID})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	j := s.job(mux.Vars(r)["jobID"])
	if j == nil {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	j.Cancel()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleProgress streams the job's events as SSE until run-finished, then
// appends a final payload with the export file (or the failure reason).
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	j := s.job(mux.Vars(r)["jobID"])
	if j == nil {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case ev, open := <-j.Stream.Events():
			if !open {
				s.writeFinalEvent(w, flusher, j)
				return
			}
			writeSSE(w, flusher, eventJSON(ev))
		case <-heartbeat.C:
			writeSSE(w, flusher, map[string]any{"type": "heartbeat"})
		case <-r.Context().Done():
			return
		}
	}
}

// writeFinalEvent waits for the job to settle (export written or failed)
// and tells the client where the file is.
func (s *Server) writeFinalEvent(w http.ResponseWriter, flusher http.Flusher, j *job) {
	<-j.Done

	s.mu.Lock()
	status, errMsg, file := j.Status, j.Err, j.OutputFile
	s.mu.Unlock()

	if status == "error" {
		writeSSE(w, flusher, map[string]any{"type": "error", "message": errMsg})
		return
	}
	writeSSE(w, flusher, map[string]any{"type": "export-ready", "file": file})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	filename := filepath.Base(mux.Vars(r)["filename"])
	path := filepath.Join(s.cfg.OutputDir, filename)

	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="scraped_stores.xlsx"`)
	w.Header().Set("Content-Type",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	http.ServeFile(w, r, path)
}

// handleArchive lists everything persisted across runs. Only available when
// the postgres archive is configured.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, "Archive is not enabled")
		return
	}

	listings, err := s.archive.FetchAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not read archive")
		return
	}

	payload := make([]map[string]any, 0, len(listings))
	for _, l := range listings {
		row := map[string]any{
			"name":      l.Name,
			"address":   l.Address,
			"phone":     l.Phone,
			"category":  l.Category,
			"website":   l.Website,
			"maps_url":  l.MapsURL,
			"rating":    l.Rating,
			"reviews":   l.Reviews,
			"postcodes": l.Postcodes,
		}
		if l.HasCoords {
			row["latitude"] = l.Latitude
			row["longitude"] = l.Longitude
		}
		payload = append(payload, row)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":    len(payload),
		"listings": payload,
	})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	deleted := 0
	var files []string

	for _, dir := range []string{s.cfg.OutputDir, s.cfg.UploadDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
				deleted++
				files = append(files, entry.Name())
			}
		}
	}

	s.mu.Lock()
	s.uploads = make(map[string]*upload)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"total_deleted": deleted,
		"files":         files,
	})
}

func (s *Server) handleCleanupInfo(w http.ResponseWriter, r *http.Request) {
	totalFiles := 0
	var totalSize int64

	for _, dir := range []string{s.cfg.OutputDir, s.cfg.UploadDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			info, err := entry.Info()
			if err != nil || entry.IsDir() {
				continue
			}
			totalFiles++
			totalSize += info.Size()
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_files":      totalFiles,
		"total_size_bytes": totalSize,
	})
}

// eventJSON flattens a progress event into the wire shape the UI consumes.
func eventJSON(ev progress.Event) map[string]any {
	out := map[string]any{"type": string(ev.Type)}
	if ev.Postcode != "" {
		out["postcode"] = ev.Postcode
	}
	if ev.Message != "" {
		out["message"] = ev.Message
	}
	if ev.Listing != nil {
		out["is_new"] = ev.IsNew
		out["listing"] = map[string]any{
			"name":     ev.Listing.Name,
			"address":  ev.Listing.Address,
			"phone":    ev.Listing.Phone,
			"category": ev.Listing.Category,
			"rating":   ev.Listing.Rating,
			"reviews":  ev.Listing.Reviews,
			"website":  ev.Listing.Website,
			"maps_url": ev.Listing.MapsURL,
		}
	}
	if ev.State != nil {
		out["state"] = map[string]any{
			"postcode": ev.State.Postcode,
			"status":   string(ev.State.Status),
			"found":    ev.State.Found,
			"new":      ev.State.New,
			"skipped":  ev.State.Skipped,
			"reason":   ev.State.Reason,
		}
	}
	if ev.Summary != nil {
		out["summary"] = map[string]any{
			"total_unique":     ev.Summary.TotalUnique,
			"total_new":        ev.Summary.TotalNew,
			"baseline_count":   ev.Summary.BaselineCount,
			"failed_postcodes": ev.Summary.FailedPostcodes,
			"skipped_listings": ev.Summary.SkippedListings,
			"partial":          ev.Summary.Partial,
		}
	}
	return out
}

func uploadSummary(sessionID, filename string, listings []models.RawListing) map[string]any {
	withPhone := 0
	postcodeSet := map[string]struct{}{}
	var postcodes []string
	var sample []map[string]string

	for i, l := range listings {
		if l.Phone != "" && !strings.EqualFold(l.Phone, "n/a") {
			withPhone++
		}
		if l.Postcode != "" {
			if _, ok := postcodeSet[l.Postcode]; !ok {
				postcodeSet[l.Postcode] = struct{}{}
				postcodes = append(postcodes, l.Postcode)
			}
		}
		if i < 5 {
			sample = append(sample, map[string]string{
				"name":    l.Name,
				"address": l.Address,
				"phone":   l.Phone,
			})
		}
	}

	return map[string]any{
		"session_id":      sessionID,
		"filename":        filename,
		"total_stores":    len(listings),
		"with_phone":      withPhone,
		"postcodes_found": postcodes,
		"sample":          sample,
	}
}

func saveUpload(src io.Reader, path string) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
