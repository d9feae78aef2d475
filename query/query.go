/*
 * This file is part of Chihaya.
 *
 * Chihaya is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * Chihaya is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with Chihaya.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package query decomposes an HTTP request target into an endpoint and an
// ordered set of name/value parameters. It is based on
// https://github.com/chihaya/chihaya/blob/e6e7269/bittorrent/params.go but
// no longer percent-decodes anything: names and values are kept as the raw
// bytes that arrived on the wire, since the reply echoes info_hash verbatim.
package query

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"mini-tracker/config"
)

type Endpoint int

const (
	EndpointAnnounce Endpoint = iota
	EndpointScrape
)

var (
	ErrUnknownEndpoint = errors.New("query: unknown endpoint")
	ErrBareParameter   = errors.New("query: bare parameter")
	ErrNoParameters    = errors.New("query: no parameters")
)

type Param struct {
	Name  string
	Value string
}

// Params is the decomposed form of a request target: an endpoint plus its
// parameters, sorted lexicographically by name so Get can binary search.
type Params struct {
	Endpoint Endpoint
	pairs    []Param
}

func endpointFor(path string) (Endpoint, bool) {
	switch path {
	case "/announce.php":
		return EndpointAnnounce, true
	case "/scrape.php":
		return EndpointScrape, true
	default:
		return 0, false
	}
}

// Parse decomposes a request target of the form
// "/<endpoint>?k1=v1&k2=v2&…". An endpoint outside {announce.php,
// scrape.php} is ErrUnknownEndpoint. A bare name with no "=" is
// ErrBareParameter. Zero parameters is ErrNoParameters. Parameters beyond
// the 40th are silently dropped without being validated at all.
func Parse(target string) (*Params, error) {
	path, rawQuery, hasQuery := strings.Cut(target, "?")

	endpoint, ok := endpointFor(path)
	if !ok {
		return nil, ErrUnknownEndpoint
	}
	if !hasQuery {
		return nil, ErrNoParameters
	}

	var pairs []Param

	for rawQuery != "" {
		var part string
		if i := strings.IndexByte(rawQuery, '&'); i >= 0 {
			part, rawQuery = rawQuery[:i], rawQuery[i+1:]
		} else {
			part, rawQuery = rawQuery, ""
		}

		if part == "" {
			continue
		}

		if len(pairs) >= config.QueryParamCap {
			continue
		}

		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			return nil, ErrBareParameter
		}

		pairs = append(pairs, Param{Name: part[:eq], Value: part[eq+1:]})
	}

	if len(pairs) == 0 {
		return nil, ErrNoParameters
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Name < pairs[j].Name })

	return &Params{Endpoint: endpoint, pairs: pairs}, nil
}

// Get returns the raw value for name, undecoded.
func (p *Params) Get(name string) (string, bool) {
	i := sort.Search(len(p.pairs), func(i int) bool { return p.pairs[i].Name >= name })
	if i < len(p.pairs) && p.pairs[i].Name == name {
		return p.pairs[i].Value, true
	}
	return "", false
}

func (p *Params) Exists(name string) bool {
	_, ok := p.Get(name)
	return ok
}

func (p *Params) GetUint64(name string) (uint64, bool) {
	str, ok := p.Get(name)
	if !ok {
		return 0, false
	}

	v, err := strconv.ParseUint(str, 10, 64)
	return v, err == nil
}

func (p *Params) GetUint16(name string) (uint16, bool) {
	str, ok := p.Get(name)
	if !ok {
		return 0, false
	}

	v, err := strconv.ParseUint(str, 10, 16)
	return uint16(v), err == nil
}

// Len reports how many parameters survived parsing (after the 40-param
// cap), for tests asserting boundary behavior.
func (p *Params) Len() int {
	return len(p.pairs)
}
