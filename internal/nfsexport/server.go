package nfsexport

import (
	"net"

	billy "github.com/go-git/go-billy/v5"
	"github.com/gravitational/trace"
	nfs "github.com/willscott/go-nfs"
	nfshelper "github.com/willscott/go-nfs/helpers"
)

// Server manages the NFS export lifecycle.
type Server struct {
	listener net.Listener
}

// NewServer starts serving fs over NFS on addr. Pass an addr with port 0
// for an ephemeral port (tests do this).
func NewServer(addr string, fs billy.Filesystem) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, trace.Wrap(err, "nfs listen on %s", addr)
	}

	handler := nfshelper.NewNullAuthHandler(fs)
	cacheHelper := nfshelper.NewCachingHandler(handler, 4096)
	go func() {
		_ = nfs.Serve(listener, cacheHelper)
	}()

	return &Server{listener: listener}, nil
}

// Addr returns the address the export is bound to.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close stops the export by closing the listener.
func (s *Server) Close() error {
	return s.listener.Close()
}
