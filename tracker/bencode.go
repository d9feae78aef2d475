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

package tracker

import (
	"bytes"
	"encoding/binary"

	"mini-tracker/registry"
	"mini-tracker/util"
)

// failureReason is sent verbatim as the failure-reason bencoded body on
// any AnnounceInvalid outcome. Preserved for wire compatibility with the
// original tracker.
const failureReason = "invalid request (see http://bitconjurer.org/BitTorrent/protocol.html)"

func writeFailure(buf *bytes.Buffer) {
	buf.WriteByte('d')
	util.BencodeString(buf, "failure reason")
	util.BencodeString(buf, failureReason)
	buf.WriteByte('e')
}

// writeCompactReply writes the compact-form announce reply: a dictionary
// with "interval" and "peers", the latter a packed blob of 6-byte
// (ip, port) records in insertion order.
func writeCompactReply(buf *bytes.Buffer, interval int, others []registry.PeerView) {
	blob := make([]byte, 0, 6*len(others))

	for _, v := range others {
		ip4 := v.IP.To4()
		if ip4 == nil {
			continue
		}

		blob = append(blob, ip4...)

		var portBytes [2]byte
		binary.BigEndian.PutUint16(portBytes[:], v.Port)
		blob = append(blob, portBytes[:]...)
	}

	buf.WriteByte('d')
	util.BencodeString(buf, "interval")
	util.BencodeNumber(buf, interval)
	util.BencodeString(buf, "peers")
	util.BencodeString(buf, blob)
	buf.WriteByte('e')
}

// writeDictReply writes the dictionary-list form: a list of
// {ip, port} dictionaries instead of a packed blob.
func writeDictReply(buf *bytes.Buffer, interval int, others []registry.PeerView) {
	buf.WriteByte('d')
	util.BencodeString(buf, "interval")
	util.BencodeNumber(buf, interval)
	util.BencodeString(buf, "peers")

	buf.WriteByte('l')
	for _, v := range others {
		buf.WriteByte('d')
		util.BencodeString(buf, "ip")
		util.BencodeString(buf, v.IP.String())
		util.BencodeString(buf, "port")
		util.BencodeNumber(buf, int(v.Port))
		buf.WriteByte('e')
	}
	buf.WriteByte('e')

	buf.WriteByte('e')
}
