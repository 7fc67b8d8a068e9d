package github

import (
	"fmt"
	"strings"

	"github.com/c360studio/repograph/kg"
)

// Metadata is the acquisition record for one repository. It is created once
// and persisted as metadata.json next to the README.
type Metadata struct {
	Name            string   `json:"name"`
	Owner           string   `json:"owner"`
	Stars           int      `json:"stars"`
	Contributors    []string `json:"contributors"`
	License         string   `json:"license,omitempty"`
	URL             string   `json:"url"`
	PrimaryLanguage string   `json:"primary_language,omitempty"`
	Languages       []string `json:"languages"`
	Topics          []string `json:"topics"`
	Releases        []string `json:"releases"`
	Description     string   `json:"description,omitempty"`
}

// ID returns the repository identifier {owner}_{name}.
func (m *Metadata) ID() string {
	return kg.RepositoryID(m.Owner, m.Name)
}

// FullName returns owner/name.
func (m *Metadata) FullName() string {
	return m.Owner + "/" + m.Name
}

// Ref identifies a repository on the hosting platform.
type Ref struct {
	Owner string
	Name  string
}

// FullName returns owner/name.
func (r Ref) FullName() string {
	return r.Owner + "/" + r.Name
}

// ID returns the repository identifier {owner}_{name}.
func (r Ref) ID() string {
	return kg.RepositoryID(r.Owner, r.Name)
}

// ParseRef parses "owner/name".
func ParseRef(s string) (Ref, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Ref{}, fmt.Errorf("invalid repository reference %q: want owner/name", s)
	}
	return Ref{Owner: owner, Name: name}, nil
}

// apiRepository is the subset of the repository payload we read.
type apiRepository struct {
	Name            string   `json:"name"`
	FullName        string   `json:"full_name"`
	Description     string   `json:"description"`
	HTMLURL         string   `json:"html_url"`
	StargazersCount int      `json:"stargazers_count"`
	Language        string   `json:"language"`
	Topics          []string `json:"topics"`
	Owner           struct {
		Login string `json:"login"`
	} `json:"owner"`
	License *struct {
		Key    string `json:"key"`
		Name   string `json:"name"`
		SPDXID string `json:"spdx_id"`
	} `json:"license"`
}

type apiReadme struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	DownloadURL string `json:"download_url"`
}

type apiContributor struct {
	Login string `json:"login"`
}

type apiRelease struct {
	TagName string `json:"tag_name"`
}
