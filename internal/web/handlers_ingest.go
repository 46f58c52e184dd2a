package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/JonMunkholm/stageload/internal/core"
	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/JonMunkholm/stageload/internal/storage"
)

// multipartMemory is the part of a multipart form kept in memory; the rest
// spills to temporary files.
const multipartMemory = 32 << 20

// multipartOverhead allows for form fields and boundaries on top of the
// file size limit.
const multipartOverhead = 1 << 20

// handleIngest loads one uploaded file. Archives are handed to the archive
// coordinator and workbooks are converted to CSV first.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Limiter.Acquire(r.Context()); err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	defer s.deps.Limiter.Release()

	data, name, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}

	if core.IsArchive(name) {
		s.ingestArchive(w, r, data, name)
		return
	}

	sub, err := s.submission(r, data, name)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}

	m, err := s.deps.Pipeline.Ingest(r.Context(), sub)
	if err != nil {
		s.respondIngestError(w, r, err, m)
		return
	}

	status := http.StatusCreated
	if m.AlreadyProcessed {
		status = http.StatusOK
	}
	writeJSONStatus(w, status, m)
}

// respondIngestError echoes the batch id of the FAILED manifest, if one
// was recorded.
func (s *Server) respondIngestError(w http.ResponseWriter, r *http.Request, err error, m *domain.Manifest) {
	if m == nil {
		s.respondError(w, r, err, nil)
		return
	}
	id := m.BatchID
	s.respondError(w, r, err, &id)
}

// submission builds a pipeline submission from the form fields:
// format (csv|tsv), has_headers and route. route defaults to whether the
// filename follows the routing convention; has_headers defaults to the
// opposite of route.
func (s *Server) submission(r *http.Request, data []byte, name string) (core.Submission, error) {
	if core.IsWorkbook(name) {
		csvData, err := core.ConvertWorkbook(data)
		if err != nil {
			return core.Submission{}, err
		}
		return core.Submission{
			Data:        csvData,
			FileName:    core.WorkbookCSVName(name),
			FilePath:    "upload://" + name,
			ContentType: "text/csv",
			Format:      domain.FormatCSV,
			HasHeaders:  true,
		}, nil
	}
	if !core.IsDelimited(name) {
		return core.Submission{}, fmt.Errorf("%s: %w", name, core.ErrUnsupportedFileType)
	}

	route, err := formBool(r, "route", s.deps.Pipeline.CanRoute(name))
	if err != nil {
		return core.Submission{}, err
	}
	hasHeaders, err := formBool(r, "has_headers", !route)
	if err != nil {
		return core.Submission{}, err
	}

	format := domain.FormatForFile(name)
	if v := r.FormValue("format"); v != "" {
		if format, err = domain.ParseFormat(v); err != nil {
			return core.Submission{}, badRequest(err.Error())
		}
	}

	return core.Submission{
		Data:            data,
		FileName:        name,
		FilePath:        "upload://" + name,
		ContentType:     storage.ContentType(name),
		Format:          format,
		HasHeaders:      hasHeaders,
		RouteByFilename: route,
	}, nil
}

// handleArchive loads every eligible member of an uploaded zip archive.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Limiter.Acquire(r.Context()); err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	defer s.deps.Limiter.Release()

	data, name, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	if !core.IsArchive(name) {
		s.respondError(w, r, badRequest("archive must be a .zip file"), nil)
		return
	}
	s.ingestArchive(w, r, data, name)
}

func (s *Server) ingestArchive(w http.ResponseWriter, r *http.Request, data []byte, name string) {
	res, err := s.deps.Pipeline.IngestArchive(r.Context(), data, name)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}

	switch res.Status {
	case domain.BatchFailed:
		writeJSONStatus(w, http.StatusUnprocessableEntity, res)
	case domain.BatchAlreadyProcessed:
		writeJSON(w, res)
	default:
		writeJSONStatus(w, http.StatusCreated, res)
	}
}

// handleAnalyzeArchive reports what an archive would load without loading
// or tracking anything.
func (s *Server) handleAnalyzeArchive(w http.ResponseWriter, r *http.Request) {
	data, name, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	if !core.IsArchive(name) {
		s.respondError(w, r, badRequest("archive must be a .zip file"), nil)
		return
	}

	a, err := s.deps.Pipeline.AnalyzeArchive(r.Context(), data, name)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	writeJSON(w, a)
}

// readUpload reads the multipart "file" field, bounded by the configured
// maximum file size.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	maxSize := s.cfg.Ingest.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", fmt.Errorf("upload exceeds %d bytes: %w", maxSize, core.ErrFileTooLarge)
		}
		return nil, "", badRequest("invalid multipart form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", badRequest("no file provided")
	}
	defer file.Close()

	if header.Size > maxSize {
		return nil, "", fmt.Errorf("%s is %d bytes (limit %d): %w", header.Filename, header.Size, maxSize, core.ErrFileTooLarge)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}

	name := filepath.Base(filepath.Clean("/" + header.Filename))
	if name == "/" || name == "." {
		return nil, "", badRequest("file name is required")
	}
	return data, name, nil
}

// formBool parses a boolean form field, returning def when it is absent.
func formBool(r *http.Request, name string, def bool) (bool, error) {
	v := r.FormValue(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, badRequest(fmt.Sprintf("%s must be true or false", name))
	}
	return b, nil
}
