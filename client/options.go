/*
 * Copyright 2025 The Yorkie Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package client

import (
	"google.golang.org/grpc"

	"github.com/yorkie-team/docsync/credentials"
	"github.com/yorkie-team/docsync/internal/logging"
	"github.com/yorkie-team/docsync/metrics/prometheus"
	"github.com/yorkie-team/docsync/persistence"
)

// Option configures Options.
type Option func(*Options)

// Options configures how we set up the client.
type Options struct {
	// Key is the key of the client. A random key is used by default.
	Key string

	// Credentials provides the tokens streams are authenticated with.
	Credentials credentials.Provider

	// AppCheck provides the app check tokens sent along with credentials.
	AppCheck credentials.Provider

	// Persistence replaces the cache created from the config.
	Persistence persistence.Persistence

	// Conn is a connection to the backend used instead of dialing the
	// configured address. The client does not close it.
	Conn grpc.ClientConnInterface

	// DialOptions are added to the options the address is dialed with.
	DialOptions []grpc.DialOption

	// StartOffline keeps the network disabled until EnableNetwork.
	StartOffline bool

	// Logger is the Logger of the client.
	Logger logging.Logger

	// Metrics records the metrics of the client.
	Metrics *prometheus.Metrics
}

// WithKey configures the key of the client.
func WithKey(key string) Option {
	return func(o *Options) { o.Key = key }
}

// WithCredentials configures the provider of the tokens of the client.
func WithCredentials(provider credentials.Provider) Option {
	return func(o *Options) { o.Credentials = provider }
}

// WithAppCheck configures the provider of app check tokens.
func WithAppCheck(provider credentials.Provider) Option {
	return func(o *Options) { o.AppCheck = provider }
}

// WithPersistence configures the cache of the client.
func WithPersistence(p persistence.Persistence) Option {
	return func(o *Options) { o.Persistence = p }
}

// WithConn configures the connection to the backend.
func WithConn(conn grpc.ClientConnInterface) Option {
	return func(o *Options) { o.Conn = conn }
}

// WithDialOptions configures additional options to dial the backend with.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *Options) { o.DialOptions = append(o.DialOptions, opts...) }
}

// WithStartOffline configures the client to start without the network.
func WithStartOffline() Option {
	return func(o *Options) { o.StartOffline = true }
}

// WithLogger configures the Logger of the client.
func WithLogger(logger logging.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithMetrics configures the metrics of the client.
func WithMetrics(metrics *prometheus.Metrics) Option {
	return func(o *Options) { o.Metrics = metrics }
}
