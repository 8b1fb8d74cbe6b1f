// Command normsend is a minimal multicast sender demo driving the block
// engine end to end: it slices stdin into one NORM block, computes parity,
// and transmits every segment over a multicast group at a fixed rate,
// listening for NACKs on a unicast side channel and resending repair
// symbols in response. Socket setup, pacing, and repair-timer values are
// demo scaffolding, not a complete NORM transport.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/normkit/norm/internal/block"
	"github.com/normkit/norm/internal/fec"
	"github.com/normkit/norm/internal/normlog"
	"github.com/normkit/norm/internal/protocol"
	"github.com/normkit/norm/internal/repairqueue"
	"github.com/normkit/norm/internal/wire"
)

func main() {
	group := flag.String("group", "239.0.0.1:5000", "multicast group address to send on")
	iface := flag.String("iface", "", "network interface to send the multicast group on (empty: system default)")
	nackAddr := flag.String("nack-addr", ":5001", "unicast address this sender listens for NACKs on")
	numData := flag.Uint("num-data", 8, "number of data segments per block")
	numParity := flag.Uint("num-parity", 4, "number of parity segments per block")
	segmentSize := flag.Uint("segment-size", 1024, "segment payload size in bytes")
	scheme := flag.String("scheme", "rs", "fec scheme: xor or rs")
	rateLimit := flag.Float64("rate", 200, "segments sent per second")
	flag.Parse()

	if err := run(*group, *iface, *nackAddr, int(*numData), int(*numParity), int(*segmentSize), *scheme, *rateLimit); err != nil {
		log.Fatal(err)
	}
}

func run(group, iface, nackAddr string, numData, numParity, segmentSize int, scheme string, rateLimit float64) error {
	logger := normlog.NewLogger(os.Stderr)

	pool, err := block.NewSegmentPool(numData+numParity+4, segmentSize)
	if err != nil {
		return fmt.Errorf("normsend: %w", err)
	}

	codecScheme, err := newScheme(scheme, numData, numParity)
	if err != nil {
		return fmt.Errorf("normsend: %w", err)
	}
	codec := fec.NewBlockCodec(codecScheme, numData, numParity)

	blk, err := block.NewBlock(numData + numParity)
	if err != nil {
		return fmt.Errorf("normsend: %w", err)
	}
	blk.SetId(protocol.BlockId(1))

	if err := fillFromReader(blk, pool, os.Stdin, numData); err != nil {
		return fmt.Errorf("normsend: reading stdin: %w", err)
	}
	if err := codec.EncodeBlock(blk, pool); err != nil {
		return fmt.Errorf("normsend: encoding parity: %w", err)
	}
	logger.Log(normlog.BlockOpened{BlockId: uint32(blk.Id()), Size: blk.Size(), SegmentCount: numData + numParity})

	dataConn, dst, err := dialMulticast(group, iface)
	if err != nil {
		return fmt.Errorf("normsend: %w", err)
	}
	defer dataConn.Close()

	nackConn, err := net.ListenPacket("udp4", nackAddr)
	if err != nil {
		return fmt.Errorf("normsend: listening for NACKs: %w", err)
	}
	defer nackConn.Close()

	repairs := repairqueue.New(nil)
	limiter := rate.NewLimiter(rate.Limit(rateLimit), 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		return sendLoop(ctx, dataConn, dst, limiter, blk, numData, numParity)
	})
	g.Go(func() error {
		return nackLoop(ctx, nackConn, dataConn, dst, blk, repairs, logger, numData, numParity)
	})
	return g.Wait()
}

func newScheme(name string, numData, numParity int) (fec.Scheme, error) {
	switch name {
	case "xor":
		return fec.NewXORScheme(numData, numParity)
	case "rs":
		return fec.NewReedSolomonScheme(numData, numParity)
	default:
		return nil, fmt.Errorf("unknown scheme %q", name)
	}
}

func fillFromReader(blk *block.Block, pool *block.SegmentPool, r io.Reader, numData int) error {
	for i := 0; i < numData; i++ {
		seg, ok := pool.Get()
		if !ok {
			return fmt.Errorf("segment pool exhausted filling data segment %d", i)
		}
		n, err := io.ReadFull(r, seg)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return err
		}
		clear(seg[n:])
		blk.SetSegment(i, seg)
	}
	return nil
}

// dialMulticast opens a UDP socket with SO_REUSEADDR set (so multiple
// senders/receivers can share the port on the same host, useful for local
// demoing) and returns an ipv4.PacketConn plus the resolved group address
// sendLoop writes every segment to.
func dialMulticast(group, iface string) (*ipv4.PacketConn, *net.UDPAddr, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}
	conn, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return nil, nil, err
	}
	pc := ipv4.NewPacketConn(conn)

	dst, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if iface != "" {
		ifi, err := net.InterfaceByName(iface)
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		if err := pc.SetMulticastInterface(ifi); err != nil {
			conn.Close()
			return nil, nil, err
		}
	}
	if err := pc.SetMulticastTTL(8); err != nil {
		conn.Close()
		return nil, nil, err
	}
	pc.SetMulticastLoopback(true)
	return pc, dst, nil
}

func sendLoop(ctx context.Context, pc *ipv4.PacketConn, dst *net.UDPAddr, limiter *rate.Limiter, blk *block.Block, numData, numParity int) error {
	for i := 0; i < numData+numParity; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		seg := blk.Segment(i)
		if seg == nil {
			continue
		}
		var buf []byte
		if i < numData {
			msg := &wire.NormDataMsg{
				ObjectId:  protocol.ObjectId(1),
				BlockId:   blk.Id(),
				SegmentId: protocol.SegmentId(i),
				Payload:   seg,
			}
			buf = msg.Append(make([]byte, 0, msg.Len()))
		} else {
			msg := &wire.NormRepairMsg{
				BlockId:   blk.Id(),
				SegmentId: protocol.SegmentId(i),
				Payload:   seg,
			}
			buf = msg.Append(make([]byte, 0, msg.Len()))
		}
		if _, err := pc.WriteTo(buf, nil, dst); err != nil {
			return err
		}
	}
	return nil
}

// nackLoop drains NACKs arriving on nackConn. It cannot yet decode a NACK's
// packed item/range contents (NormRepairRequest has no Parse counterpart to
// NormDataMsg.Append/ParseNormDataMsg), so it treats any inbound datagram as
// "resend every parity segment" — adequate for a demo, not a faithful NORM
// sender's selective repair response. Repairs go to the multicast group,
// where receivers are listening, not back to the NACK's source address.
func nackLoop(ctx context.Context, conn net.PacketConn, pc *ipv4.PacketConn, dst *net.UDPAddr, blk *block.Block, repairs *repairqueue.Queue, logger *normlog.Logger, numData, numParity int) error {
	buf := make([]byte, wire.MaxMessagePayload)
	for {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			return err
		}

		logger.Log(normlog.RepairRequested{
			BlockId:      uint32(blk.Id()),
			ObjectId:     1,
			ErasureCount: blk.ErasureCount(),
			NumParity:    uint16(numParity),
			NackDigest:   normlog.SegmentDigest(buf[:n]),
		})

		for i := numData; i < numData+numParity; i++ {
			seg := blk.Segment(i)
			if seg == nil {
				continue
			}
			repairs.Add(&wire.NormRepairMsg{BlockId: blk.Id(), SegmentId: protocol.SegmentId(i), Payload: seg})
		}
		for repairs.Len() > 0 {
			msg := repairs.Peek()
			repairs.Pop()
			out := msg.Append(make([]byte, 0, msg.Len()))
			if _, err := pc.WriteTo(out, nil, dst); err != nil {
				return err
			}
		}
	}
}
