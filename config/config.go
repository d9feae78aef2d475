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

package config

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"mini-tracker/log"
)

// Tunables, overridable via config.json. Defaults match the original
// tracker's compiled-in constants. The listening port is deliberately not
// one of them: per the CLI contract, the port argument (or its absence)
// always wins.
var (
	MetricsAddr = ":9090"

	RequestBufferCap = 2048
	RequestTimeout   = 10 * time.Second

	MinAnnounceInterval = 900 * time.Second
	MaxAnnounceRate     = 500
	ExpireFactor        = 1.2

	QueryParamCap = 40
)

var (
	configFile = "config.json"
	config     ConfigMap
	once       sync.Once
)

type ConfigMap map[string]interface{}

func Get(s string, defaultValue string) (string, bool) {
	once.Do(readConfig)
	return config.Get(s, defaultValue)
}

func GetBool(s string, defaultValue bool) (bool, bool) {
	once.Do(readConfig)
	return config.GetBool(s, defaultValue)
}

func GetInt(s string, defaultValue int) (int, bool) {
	once.Do(readConfig)
	return config.GetInt(s, defaultValue)
}

func Section(s string) ConfigMap {
	once.Do(readConfig)
	return config.Section(s)
}

// Load forces the config file to be read now instead of lazily on first
// Get/GetInt/GetBool/Section call, so overrides are in effect before the
// registry and server are constructed.
func Load() {
	once.Do(readConfig)
}

func (m ConfigMap) Get(s string, defaultValue string) (string, bool) {
	if result, exists := m[s].(string); exists {
		return result, true
	}
	return defaultValue, false
}

func (m ConfigMap) GetInt(s string, defaultValue int) (int, bool) {
	if result, exists := m[s].(json.Number); exists {
		res, _ := result.Int64()
		return int(res), true
	}
	return defaultValue, false
}

func (m ConfigMap) GetBool(s string, defaultValue bool) (bool, bool) {
	if result, exists := m[s].(bool); exists {
		return result, true
	}
	return defaultValue, false
}

func (m ConfigMap) Section(s string) ConfigMap {
	result, _ := m[s].(map[string]interface{})
	return result
}

func readConfig() {
	f, err := os.Open(configFile)
	if err != nil {
		log.Warning.Printf("unable to open config file, defaults will be used! (%s)", err)
		return
	}
	defer f.Close()

	decoder := json.NewDecoder(f)
	decoder.UseNumber()

	if err := decoder.Decode(&config); err != nil {
		log.Error.Printf("can not parse config file, defaults will be used! (%s)", err)
		return
	}

	applyOverrides()
}

// applyOverrides pulls the tunables out of the decoded config map, leaving
// the compiled-in defaults untouched for anything absent from the file.
func applyOverrides() {
	if v, ok := config.Get("metrics_addr", MetricsAddr); ok {
		MetricsAddr = v
	}
	if v, ok := config.GetInt("request_buffer_cap", RequestBufferCap); ok {
		RequestBufferCap = v
	}
	if v, ok := config.GetInt("request_timeout_seconds", int(RequestTimeout/time.Second)); ok {
		RequestTimeout = time.Duration(v) * time.Second
	}
	if v, ok := config.GetInt("min_announce_interval_seconds", int(MinAnnounceInterval/time.Second)); ok {
		MinAnnounceInterval = time.Duration(v) * time.Second
	}
	if v, ok := config.GetInt("max_announce_rate", MaxAnnounceRate); ok {
		MaxAnnounceRate = v
	}
	if n, ok := config["expire_factor"].(json.Number); ok {
		if v, err := n.Float64(); err == nil {
			ExpireFactor = v
		}
	}
	if v, ok := config.GetInt("query_param_cap", QueryParamCap); ok {
		QueryParamCap = v
	}
}
