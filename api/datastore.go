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

package api

import (
	"context"

	"google.golang.org/grpc"
)

// The full method names of the Datastore service.
const (
	DatastoreListenFullMethod = "/docsync.v1.Datastore/Listen"
	DatastoreWriteFullMethod  = "/docsync.v1.Datastore/Write"
)

// DatastoreClient is the client API of the Datastore service.
type DatastoreClient interface {
	Listen(ctx context.Context, opts ...grpc.CallOption) (DatastoreListenClient, error)
	Write(ctx context.Context, opts ...grpc.CallOption) (DatastoreWriteClient, error)
}

// DatastoreListenClient is the client side of the Listen stream.
type DatastoreListenClient interface {
	Send(*ListenRequest) error
	Recv() (*ListenResponse, error)
	grpc.ClientStream
}

// DatastoreWriteClient is the client side of the Write stream.
type DatastoreWriteClient interface {
	Send(*WriteRequest) error
	Recv() (*WriteResponse, error)
	grpc.ClientStream
}

type datastoreClient struct {
	cc grpc.ClientConnInterface
}

// NewDatastoreClient creates a client of the Datastore service. Calls are
// encoded with Codec.
func NewDatastoreClient(cc grpc.ClientConnInterface) DatastoreClient {
	return &datastoreClient{cc: cc}
}

func (c *datastoreClient) Listen(ctx context.Context, opts ...grpc.CallOption) (DatastoreListenClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &DatastoreServiceDesc.Streams[0], DatastoreListenFullMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &datastoreListenClient{ClientStream: stream}, nil
}

func (c *datastoreClient) Write(ctx context.Context, opts ...grpc.CallOption) (DatastoreWriteClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &DatastoreServiceDesc.Streams[1], DatastoreWriteFullMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &datastoreWriteClient{ClientStream: stream}, nil
}

type datastoreListenClient struct {
	grpc.ClientStream
}

func (x *datastoreListenClient) Send(m *ListenRequest) error {
	return x.ClientStream.SendMsg(m)
}

func (x *datastoreListenClient) Recv() (*ListenResponse, error) {
	m := new(ListenResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type datastoreWriteClient struct {
	grpc.ClientStream
}

func (x *datastoreWriteClient) Send(m *WriteRequest) error {
	return x.ClientStream.SendMsg(m)
}

func (x *datastoreWriteClient) Recv() (*WriteResponse, error) {
	m := new(WriteResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// DatastoreServer is the server API of the Datastore service.
type DatastoreServer interface {
	Listen(DatastoreListenServer) error
	Write(DatastoreWriteServer) error
}

// DatastoreListenServer is the server side of the Listen stream.
type DatastoreListenServer interface {
	Send(*ListenResponse) error
	Recv() (*ListenRequest, error)
	grpc.ServerStream
}

// DatastoreWriteServer is the server side of the Write stream.
type DatastoreWriteServer interface {
	Send(*WriteResponse) error
	Recv() (*WriteRequest, error)
	grpc.ServerStream
}

// RegisterDatastoreServer registers srv on s.
func RegisterDatastoreServer(s grpc.ServiceRegistrar, srv DatastoreServer) {
	s.RegisterService(&DatastoreServiceDesc, srv)
}

type datastoreListenServer struct {
	grpc.ServerStream
}

func (x *datastoreListenServer) Send(m *ListenResponse) error {
	return x.ServerStream.SendMsg(m)
}

func (x *datastoreListenServer) Recv() (*ListenRequest, error) {
	m := new(ListenRequest)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type datastoreWriteServer struct {
	grpc.ServerStream
}

func (x *datastoreWriteServer) Send(m *WriteResponse) error {
	return x.ServerStream.SendMsg(m)
}

func (x *datastoreWriteServer) Recv() (*WriteRequest, error) {
	m := new(WriteRequest)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func datastoreListenHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(DatastoreServer).Listen(&datastoreListenServer{ServerStream: stream})
}

func datastoreWriteHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(DatastoreServer).Write(&datastoreWriteServer{ServerStream: stream})
}

// DatastoreServiceDesc describes the Datastore service.
var DatastoreServiceDesc = grpc.ServiceDesc{
	ServiceName: "docsync.v1.Datastore",
	HandlerType: (*DatastoreServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Listen",
			Handler:       datastoreListenHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
		{
			StreamName:    "Write",
			Handler:       datastoreWriteHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "docsync/v1/datastore",
}
