package api

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// errPeerCredUnsupported means the platform cannot report the uid of a
// socket peer; the socket's 0600 mode is then the only check.
var errPeerCredUnsupported = errors.New("peer credentials not supported on this platform")

type peerKey struct{}

type peer struct {
	uid int
	err error
}

// withPeer records the uid of the process on the other end of a Unix
// socket connection.
func withPeer(ctx context.Context, c net.Conn) context.Context {
	uc, ok := c.(*net.UnixConn)
	if !ok {
		return context.WithValue(ctx, peerKey{}, peer{uid: -1, err: errors.New("not a unix socket connection")})
	}
	uid, err := peerUID(uc)
	return context.WithValue(ctx, peerKey{}, peer{uid: uid, err: err})
}

// requireOwner rejects requests from processes running as another user.
func (s *Server) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := r.Context().Value(peerKey{}).(peer)
		switch {
		case !ok:
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "unknown peer"})
			return
		case errors.Is(p.err, errPeerCredUnsupported):
		case p.err != nil:
			s.logger.Warn("peer credential check failed", "error", p.err)
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "cannot verify peer"})
			return
		case p.uid != s.uid:
			s.logger.Warn("rejected peer", "uid", p.uid)
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
