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

package server

import (
	"bytes"
	"net"

	"mini-tracker/config"
)

type outcome int

const (
	outcomeOK outcome = iota
	outcomeBadVerb
	outcomeSilentFail
)

var (
	getPrefix  = []byte("GET ")
	terminator = []byte("\r\n\r\n")
)

// readRequest reads the request into a buffer capped at
// config.RequestBufferCap bytes, stopping at the \r\n\r\n terminator or
// the connection's deadline (set by the caller). It returns the request
// target - the bytes between "GET " and the next space - on success.
//
// A request that doesn't start with "GET " is outcomeBadVerb (the caller
// replies 404). Anything else that breaks framing - buffer overflow,
// timeout, short read, missing target - is outcomeSilentFail (the caller
// closes without replying).
func readRequest(conn net.Conn) (target string, out outcome) {
	raw := make([]byte, 0, config.RequestBufferCap)
	chunk := make([]byte, 512)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			raw = append(raw, chunk[:n]...)

			if len(raw) > config.RequestBufferCap {
				return "", outcomeSilentFail
			}
			if bytes.HasSuffix(raw, terminator) {
				break
			}
		}
		if err != nil {
			return "", outcomeSilentFail
		}
	}

	if !bytes.HasPrefix(raw, getPrefix) {
		return "", outcomeBadVerb
	}

	rest := raw[len(getPrefix):]

	sp := bytes.IndexByte(rest, ' ')
	if sp < 0 {
		return "", outcomeSilentFail
	}

	return string(rest[:sp]), outcomeOK
}
