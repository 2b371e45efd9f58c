package main

import (
	"context"
	"fmt"
	"time"

	"github.com/vbirds/corpc/cmn"
	"github.com/vbirds/corpc/codec"
	"github.com/vbirds/corpc/rpc"

	"github.com/urfave/cli"
)

// rawMessage is the simplest possible codec.Message: an opaque byte slice,
// good enough for a CLI that has no compiled-in service schema.
type rawMessage struct{ Body []byte }

func (m *rawMessage) Msgsize() int { return len(m.Body) }
func (m *rawMessage) MarshalMsg(b []byte) ([]byte, error) {
	return append(b, m.Body...), nil
}
func (m *rawMessage) UnmarshalMsg(b []byte) ([]byte, error) {
	m.Body = append([]byte(nil), b...)
	return nil, nil
}

func newClientFromFlags(c *cli.Context) (*rpc.Client, *rpc.Channel, error) {
	cfg := cmn.DefaultConfig()
	cfg.Transport.ConnectTimeout = durationFlagValue(c, timeoutFlag.Name, cfg.Transport.ConnectTimeout)

	client := rpc.NewClient(cfg)
	ch, err := client.RegisterChannel(c.String(hostFlag.Name), c.Int(portFlag.Name), c.Int(connFlag.Name))
	if err != nil {
		return nil, nil, err
	}
	return client, ch, nil
}

var callCmd = cli.Command{
	Name:  "call",
	Usage: "invoke a single RPC method and print the response",
	Flags: []cli.Flag{hostFlag, portFlag, connFlag, bodyFlag, serviceFlag, methodFlag, fafFlag, timeoutFlag},
	Action: func(c *cli.Context) error {
		client, ch, err := newClientFromFlags(c)
		if err != nil {
			return err
		}
		defer client.Shutdown(context.Background()) //nolint:errcheck

		md := codec.MethodDescriptor{
			ServiceID:     uint32(c.Int(serviceFlag.Name)),
			MethodIndex:   uint32(c.Int(methodFlag.Name)),
			FireAndForget: c.Bool(fafFlag.Name),
		}
		req := &rawMessage{Body: []byte(c.String(bodyFlag.Name))}
		resp := &rawMessage{}

		start := time.Now()
		ctrl := client.CallMethod(ch, md, req, resp)
		elapsed := time.Since(start)

		if ctrl.Failed() {
			fmt.Println(fred(fmt.Sprintf("call failed: %s", ctrl.ErrorText())))
			return cli.NewExitError("", 1)
		}
		fmt.Println(fgrn(fmt.Sprintf("ok (%s)", elapsed)))
		if !md.FireAndForget {
			fmt.Printf("response: %q\n", resp.Body)
		}
		return nil
	},
}

var benchCmd = cli.Command{
	Name:  "bench",
	Usage: "issue --count concurrent calls and report how many succeeded and the total time",
	Flags: []cli.Flag{hostFlag, portFlag, connFlag, bodyFlag, serviceFlag, methodFlag, countFlag, timeoutFlag},
	Action: func(c *cli.Context) error {
		client, ch, err := newClientFromFlags(c)
		if err != nil {
			return err
		}
		defer client.Shutdown(context.Background()) //nolint:errcheck

		md := codec.MethodDescriptor{
			ServiceID:   uint32(c.Int(serviceFlag.Name)),
			MethodIndex: uint32(c.Int(methodFlag.Name)),
		}
		n := c.Int(countFlag.Name)
		body := []byte(c.String(bodyFlag.Name))

		type result struct {
			ok bool
			d  time.Duration
		}
		results := make(chan result, n)
		start := time.Now()
		for i := 0; i < n; i++ {
			go func() {
				t0 := time.Now()
				ctrl := client.CallMethod(ch, md, &rawMessage{Body: body}, &rawMessage{})
				results <- result{ok: !ctrl.Failed(), d: time.Since(t0)}
			}()
		}

		var okCount int
		for i := 0; i < n; i++ {
			r := <-results
			if r.ok {
				okCount++
			}
		}
		fmt.Println(fcyan(fmt.Sprintf("%d/%d calls ok in %s", okCount, n, time.Since(start))))
		return nil
	},
}
