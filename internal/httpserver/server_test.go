package httpserver_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/window-monitor/internal/httpserver"
)

var _ = Describe("HTTP Server", func() {
	noop := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	DescribeTable("address validation",
		func(addr string, valid bool) {
			srv, err := httpserver.New(addr, noop)
			if valid {
				Expect(err).NotTo(HaveOccurred())
				Expect(srv.Addr()).To(Equal(addr))
			} else {
				Expect(err).To(HaveOccurred())
				Expect(srv).To(BeNil())
			}
		},
		Entry("hostname", "localhost:9999", true),
		Entry("ip address", "127.0.0.1:9999", true),
		Entry("port only", ":9999", true),
		Entry("too many colons", "invalid:host:port", false),
		Entry("missing port", "localhost:", false),
		Entry("non numeric port", "localhost:http", false),
		Entry("no separator", "localhost", false),
	)

	Context("server lifecycle", func() {
		var (
			srv      *httpserver.Server
			ln       net.Listener
			done     chan error
			finished chan struct{}
		)

		serve := func(handler http.Handler) {
			s, err := httpserver.New("127.0.0.1:8080", handler)
			Expect(err).NotTo(HaveOccurred())
			l, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())

			// the goroutine only sees locals, so later specs can reassign
			// the shared variables
			d, f := make(chan error, 1), make(chan struct{})
			srv, ln, done, finished = s, l, d, f
			go func() {
				defer close(f)
				d <- s.Serve(l)
			}()
		}

		AfterEach(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
			Eventually(finished).Should(BeClosed())
		})

		It("serves requests", func() {
			serve(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("test"))
			}))

			resp, err := http.Get("http://" + ln.Addr().String())
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(Equal("test"))
		})

		It("returns nil from Serve after a graceful shutdown", func() {
			serve(noop)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			Expect(srv.Shutdown(ctx)).To(Succeed())
			Eventually(done).Should(Receive(BeNil()))
		})
	})
})
