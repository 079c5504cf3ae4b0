// Copyright 2026 The Elfload Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package elfload

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	loadsTotal     *prometheus.CounterVec
	segmentsMapped prometheus.Counter
	bytesMapped    prometheus.Counter
	writableCopies prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		loadsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "elfload_loads_total",
			Help: "Total number of image loads by outcome.",
		}, []string{"outcome"}),
		segmentsMapped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "elfload_segments_mapped_total",
			Help: "Total number of PT_LOAD segments mapped by successful loads.",
		}),
		bytesMapped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "elfload_mapped_bytes_total",
			Help: "Total page-rounded bytes mapped by successful loads.",
		}),
		writableCopies: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "elfload_writable_copies_total",
			Help: "Total private copies made for writable segments in place of copy-on-write mappings.",
		}),
	}
}
