// Package githubtest provides an in-process fake of the GitHub REST API
// endpoints used by repository acquisition.
package githubtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
)

// Repo describes one repository served by the fake.
type Repo struct {
	Owner        string
	Name         string
	Stars        int
	License      string
	Language     string
	Description  string
	Topics       []string
	Languages    map[string]int64
	Contributors []string
	Releases     []string

	// HTMLURL overrides the html_url field; empty serves the github.com URL.
	HTMLURL string

	// Readme is the README body; empty serves 404 from the readme endpoint.
	Readme string

	// ReadmeName defaults to README.md.
	ReadmeName string

	// DownloadURL overrides the README download_url; empty serves the
	// fake's own raw endpoint.
	DownloadURL string

	// Status, when non-zero, is returned for the primary repository request.
	Status int
}

// Server is a fake GitHub API backed by httptest.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	repos     []Repo
	byName    map[string]*Repo
	requests  atomic.Int64
	lastAuth  string
	lastAPIV  string
	rawAuth   string
	perPathMu sync.Mutex
	perPath   map[string]int
}

// NewServer starts a fake serving repos in search order.
func NewServer(repos ...Repo) *Server {
	s := &Server{
		repos:   repos,
		byName:  make(map[string]*Repo, len(repos)),
		perPath: make(map[string]int),
	}
	for i := range s.repos {
		r := &s.repos[i]
		s.byName[r.Owner+"/"+r.Name] = r
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /search/repositories", s.handleSearch)
	mux.HandleFunc("GET /repos/{owner}/{name}", s.handleRepo)
	mux.HandleFunc("GET /repos/{owner}/{name}/readme", s.handleReadme)
	mux.HandleFunc("GET /repos/{owner}/{name}/contributors", s.handleContributors)
	mux.HandleFunc("GET /repos/{owner}/{name}/releases", s.handleReleases)
	mux.HandleFunc("GET /repos/{owner}/{name}/languages", s.handleLanguages)
	mux.HandleFunc("GET /raw/{owner}/{name}/{file}", s.handleRaw)

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		s.mu.Lock()
		s.lastAuth = r.Header.Get("Authorization")
		s.lastAPIV = r.Header.Get("X-GitHub-Api-Version")
		s.mu.Unlock()
		s.perPathMu.Lock()
		s.perPath[r.URL.Path]++
		s.perPathMu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	return s
}

// Requests returns the total number of requests served.
func (s *Server) Requests() int {
	return int(s.requests.Load())
}

// PathRequests returns how many requests hit path.
func (s *Server) PathRequests(path string) int {
	s.perPathMu.Lock()
	defer s.perPathMu.Unlock()
	return s.perPath[path]
}

// LastHeaders returns the Authorization and X-GitHub-Api-Version headers of
// the most recent request.
func (s *Server) LastHeaders() (auth, apiVersion string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth, s.lastAPIV
}

// RawAuth returns the Authorization header of the most recent README
// download from the raw endpoint.
func (s *Server) RawAuth() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rawAuth
}

func (s *Server) lookup(r *http.Request) *Repo {
	return s.byName[r.PathValue("owner")+"/"+r.PathValue("name")]
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	items := make([]any, 0, len(s.repos))
	for _, repo := range s.repos {
		items = append(items, map[string]any{
			"name":             repo.Name,
			"full_name":        repo.Owner + "/" + repo.Name,
			"stargazers_count": repo.Stars,
			"owner":            map[string]string{"login": repo.Owner},
		})
	}
	page := paginate(r, items)
	writeJSON(w, map[string]any{"total_count": len(items), "items": page})
}

func (s *Server) handleRepo(w http.ResponseWriter, r *http.Request) {
	repo := s.lookup(r)
	if repo == nil {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		return
	}
	if repo.Status != 0 {
		http.Error(w, `{"message":"unavailable"}`, repo.Status)
		return
	}

	htmlURL := repo.HTMLURL
	if htmlURL == "" {
		htmlURL = fmt.Sprintf("https://github.com/%s/%s", repo.Owner, repo.Name)
	}
	body := map[string]any{
		"name":             repo.Name,
		"full_name":        repo.Owner + "/" + repo.Name,
		"html_url":         htmlURL,
		"stargazers_count": repo.Stars,
		"topics":           repo.Topics,
		"owner":            map[string]string{"login": repo.Owner},
	}
	if repo.Language != "" {
		body["language"] = repo.Language
	}
	if repo.Description != "" {
		body["description"] = repo.Description
	}
	if repo.License != "" {
		body["license"] = map[string]string{"name": repo.License}
	} else {
		body["license"] = nil
	}
	writeJSON(w, body)
}

func (s *Server) handleReadme(w http.ResponseWriter, r *http.Request) {
	repo := s.lookup(r)
	if repo == nil || repo.Readme == "" {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		return
	}
	name := repo.ReadmeName
	if name == "" {
		name = "README.md"
	}
	downloadURL := repo.DownloadURL
	if downloadURL == "" {
		downloadURL = fmt.Sprintf("%s/raw/%s/%s/%s", s.URL, repo.Owner, repo.Name, name)
	}
	writeJSON(w, map[string]string{
		"name":         name,
		"path":         name,
		"download_url": downloadURL,
	})
}

func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	repo := s.lookup(r)
	if repo == nil {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	s.rawAuth = r.Header.Get("Authorization")
	s.mu.Unlock()
	w.Write([]byte(repo.Readme))
}

func (s *Server) handleContributors(w http.ResponseWriter, r *http.Request) {
	repo := s.lookup(r)
	if repo == nil {
		http.NotFound(w, r)
		return
	}
	items := make([]any, 0, len(repo.Contributors))
	for _, login := range repo.Contributors {
		items = append(items, map[string]string{"login": login})
	}
	writeJSON(w, paginate(r, items))
}

func (s *Server) handleReleases(w http.ResponseWriter, r *http.Request) {
	repo := s.lookup(r)
	if repo == nil {
		http.NotFound(w, r)
		return
	}
	items := make([]any, 0, len(repo.Releases))
	for _, tag := range repo.Releases {
		items = append(items, map[string]string{"tag_name": tag})
	}
	writeJSON(w, paginate(r, items))
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	repo := s.lookup(r)
	if repo == nil {
		http.NotFound(w, r)
		return
	}
	langs := repo.Languages
	if langs == nil {
		langs = map[string]int64{}
	}
	writeJSON(w, langs)
}

// paginate slices items by the page and per_page query parameters.
func paginate(r *http.Request, items []any) []any {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	perPage, err := strconv.Atoi(r.URL.Query().Get("per_page"))
	if err != nil || perPage < 1 {
		perPage = 30
	}
	start := (page - 1) * perPage
	if start >= len(items) {
		return []any{}
	}
	end := min(start+perPage, len(items))
	return items[start:end]
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
