package adnl

import (
	"github.com/xssnick/tonutils-go/tl"
)

func init() {
	tl.Register(Ping{}, "gateway.ping value:long = gateway.Ping")
	tl.Register(Pong{}, "gateway.pong value:long = gateway.Pong")

	tl.Register(Query{}, "gateway.query method:string params:bytes = gateway.Query")
	tl.Register(Result{}, "gateway.result value:bytes = gateway.Response")
	tl.Register(Error{}, "gateway.error envelope:bytes = gateway.Response")
}

type Ping struct {
	Value int64 `tl:"long"`
}

type Pong struct {
	Value int64 `tl:"long"`
}

// Query - positional params are the JSON array used by the http transport
type Query struct {
	Method string `tl:"string"`
	Params []byte `tl:"bytes"`
}

// Result - JSON encoded shaped query result
type Result struct {
	Value []byte `tl:"bytes"`
}

// Error - JSON encoded {code, message, data} envelope
type Error struct {
	Envelope []byte `tl:"bytes"`
}
