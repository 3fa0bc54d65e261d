package adnl

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xssnick/celer-pay-gateway/gateway"
	"github.com/xssnick/celer-pay-gateway/pkg/log"
	"github.com/xssnick/tonutils-go/adnl"
)

type Querier interface {
	Call(ctx context.Context, name string, params []json.RawMessage) (any, error)
}

type PeerConnection struct {
	adnl      adnl.Peer
	lastQuery int64
}

type Server struct {
	gate     *adnl.Gateway
	q        Querier
	closeCtx context.Context

	peers map[string]*PeerConnection
	mx    sync.Mutex

	closer func()
}

func NewServer(gate *adnl.Gateway, q Querier) *Server {
	s := &Server{
		gate:  gate,
		q:     q,
		peers: map[string]*PeerConnection{},
	}
	s.closeCtx, s.closer = context.WithCancel(context.Background())
	s.gate.SetConnectionHandler(s.bootstrapPeer)

	go func() {
		for {
			select {
			case <-s.closeCtx.Done():
				log.Info().Str("source", "adnl").Msg("stopped peers cleaner")
				return
			case <-time.After(5 * time.Second):
				var idle []*PeerConnection
				s.mx.Lock()
				for id, p := range s.peers {
					if time.Since(time.Unix(atomic.LoadInt64(&p.lastQuery), 0)) > 5*time.Minute {
						delete(s.peers, id)
						idle = append(idle, p)
					}
				}
				s.mx.Unlock()

				// disconnect handler takes the lock
				for _, p := range idle {
					p.adnl.Close()
					log.Debug().Str("source", "adnl").
						Str("peer", base64.StdEncoding.EncodeToString(p.adnl.GetID())).
						Msg("peer was not querying for 5 minutes, disconnected")
				}
			}
		}
	}()

	return s
}

func (s *Server) GetOurID() []byte {
	return s.gate.GetID()
}

func (s *Server) bootstrapPeer(client adnl.Peer) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.peers[string(client.GetID())] != nil {
		return nil
	}

	p := &PeerConnection{
		adnl:      client,
		lastQuery: time.Now().Unix(),
	}
	client.SetQueryHandler(s.handleADNLQuery(p))
	client.SetDisconnectHandler(func(_ string, _ ed25519.PublicKey) {
		s.mx.Lock()
		delete(s.peers, string(p.adnl.GetID()))
		s.mx.Unlock()
	})

	s.peers[string(client.GetID())] = p
	return nil
}

func (s *Server) handleADNLQuery(peer *PeerConnection) func(query *adnl.MessageQuery) error {
	return func(query *adnl.MessageQuery) error {
		ctx, cancel := context.WithTimeout(s.closeCtx, 10*time.Second)
		defer cancel()

		atomic.StoreInt64(&peer.lastQuery, time.Now().Unix())

		res, err := s.handleQuery(ctx, query.Data)
		if err != nil {
			return fmt.Errorf("failed to handle query: %w", err)
		}

		return peer.adnl.Answer(ctx, query.ID, res)
	}
}

// handleQuery answers query failures with an Error, the returned error is
// reserved for messages which are not gateway queries at all.
func (s *Server) handleQuery(ctx context.Context, msg any) (any, error) {
	switch q := msg.(type) {
	case Ping:
		return Pong{Value: q.Value}, nil
	case Query:
		var params []json.RawMessage
		if len(q.Params) > 0 {
			if err := json.Unmarshal(q.Params, &params); err != nil {
				return errorOf(&gateway.ParamsError{Method: q.Method, Reason: "params must be a json array: " + err.Error()}), nil
			}
		}

		res, err := s.q.Call(ctx, q.Method, params)
		if err != nil {
			return errorOf(err), nil
		}

		data, err := json.Marshal(res)
		if err != nil {
			log.Error().Err(err).Str("method", q.Method).Msg("failed to encode query result")
			return errorOf(err), nil
		}
		return Result{Value: data}, nil
	}
	return nil, fmt.Errorf("unexpected message type %T", msg)
}

func errorOf(err error) Error {
	data, _ := json.Marshal(gateway.AsEnvelope(err))
	return Error{Envelope: data}
}

func (s *Server) Stop() {
	s.closer()

	s.mx.Lock()
	peers := s.peers
	s.peers = map[string]*PeerConnection{}
	s.mx.Unlock()

	for _, p := range peers {
		p.adnl.Close()
	}
}
