// Command normrecv is a minimal multicast receiver demo: it joins a
// multicast group, places arriving data/repair segments into one tracked
// Block, issues a NACK for what is still missing once a short listen
// window elapses, and attempts Reed-Solomon/XOR reconstruction of
// whatever is still missing once parity arrives. Socket setup, repair
// timers, and object assembly above the block layer are demo scaffolding.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/normkit/norm/internal/block"
	"github.com/normkit/norm/internal/fec"
	"github.com/normkit/norm/internal/normlog"
	"github.com/normkit/norm/internal/protocol"
	"github.com/normkit/norm/internal/wire"
)

func main() {
	group := flag.String("group", "239.0.0.1:5000", "multicast group address to join")
	iface := flag.String("iface", "", "network interface to join the multicast group on (empty: system default)")
	senderNackAddr := flag.String("sender-nack-addr", "127.0.0.1:5001", "unicast address to send NACKs to")
	numData := flag.Uint("num-data", 8, "number of data segments per block")
	numParity := flag.Uint("num-parity", 4, "number of parity segments per block")
	segmentSize := flag.Uint("segment-size", 1024, "segment payload size in bytes")
	scheme := flag.String("scheme", "rs", "fec scheme: xor or rs")
	listenWindow := flag.Duration("listen-window", 3*time.Second, "how long to wait for segments before NACKing what's missing")
	flag.Parse()

	if err := run(*group, *iface, *senderNackAddr, int(*numData), int(*numParity), int(*segmentSize), *scheme, *listenWindow); err != nil {
		log.Fatal(err)
	}
}

func run(group, iface, senderNackAddr string, numData, numParity, segmentSize int, scheme string, listenWindow time.Duration) error {
	logger := normlog.NewLogger(os.Stderr)

	pool, err := block.NewSegmentPool(numData+numParity+4, segmentSize)
	if err != nil {
		return fmt.Errorf("normrecv: %w", err)
	}

	codecScheme, err := newScheme(scheme, numData, numParity)
	if err != nil {
		return fmt.Errorf("normrecv: %w", err)
	}
	codec := fec.NewBlockCodec(codecScheme, numData, numParity)

	blk, err := block.NewBlock(numData + numParity)
	if err != nil {
		return fmt.Errorf("normrecv: %w", err)
	}
	blk.SetId(protocol.BlockId(1))

	conn, err := joinMulticast(group, iface)
	if err != nil {
		return fmt.Errorf("normrecv: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), listenWindow)
	defer cancel()
	if err := receiveLoop(ctx, conn, blk, pool, logger); err != nil {
		return fmt.Errorf("normrecv: %w", err)
	}

	missing := missingDataCount(blk, numData)
	blk.SetErasureCount(missing)
	if missing > 0 {
		blk.TxUpdate(protocol.SegmentId(0), protocol.SegmentId(numData-1), uint16(numData), uint16(numParity), uint16(missing))
		if blk.IsRepairPending(uint16(numData), uint16(numParity)) {
			if err := sendNack(blk, senderNackAddr, numData, numParity, segmentSize); err != nil {
				log.Printf("normrecv: sending NACK: %v", err)
			}
		}
		// Give the sender a moment to answer with fresh repair symbols.
		ctx2, cancel2 := context.WithTimeout(context.Background(), listenWindow)
		defer cancel2()
		if err := receiveLoop(ctx2, conn, blk, pool, logger); err != nil {
			return fmt.Errorf("normrecv: %w", err)
		}
	}

	if err := codec.ReconstructBlock(blk); err != nil {
		return fmt.Errorf("normrecv: reconstruction failed: %w", err)
	}
	for i := 0; i < numData; i++ {
		os.Stdout.Write(blk.Segment(i))
	}
	return nil
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

func missingDataCount(blk *block.Block, numData int) int {
	n := 0
	for i := 0; i < numData; i++ {
		if blk.Segment(i) == nil {
			n++
		}
	}
	return n
}

func joinMulticast(group, iface string) (*ipv4.PacketConn, error) {
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
	addr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		return nil, err
	}
	conn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", addr.Port))
	if err != nil {
		return nil, err
	}
	pc := ipv4.NewPacketConn(conn)

	var ifi *net.Interface
	if iface != "" {
		ifi, err = net.InterfaceByName(iface)
		if err != nil {
			conn.Close()
			return nil, err
		}
	}
	if err := pc.JoinGroup(ifi, addr); err != nil {
		conn.Close()
		return nil, err
	}
	return pc, nil
}

func receiveLoop(ctx context.Context, pc *ipv4.PacketConn, blk *block.Block, pool *block.SegmentPool, logger *normlog.Logger) error {
	buf := make([]byte, pool.SegmentSize()+64)
	for {
		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(time.Second)
		}
		pc.SetReadDeadline(deadline)

		n, _, _, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				if ctx.Err() != nil {
					return nil
				}
				continue
			}
			return err
		}
		if err := handleDatagram(blk, pool, buf[:n], logger); err != nil {
			log.Printf("normrecv: dropping malformed datagram: %v", err)
		}
	}
}

// handleDatagram distinguishes a NormDataMsg from a NormRepairMsg the way
// the NORM wire format itself would (a leading message-type byte) once
// one exists; for now it tries NormDataMsg first and falls back to
// NormRepairMsg, since the two have different field counts.
func handleDatagram(blk *block.Block, pool *block.SegmentPool, data []byte, logger *normlog.Logger) error {
	if dm, err := wire.ParseNormDataMsg(bytes.NewReader(data)); err == nil && int(dm.SegmentId) < blk.Size() {
		seg, ok := pool.Get()
		if !ok {
			return fmt.Errorf("segment pool exhausted")
		}
		n := copy(seg, dm.Payload)
		clear(seg[n:])
		blk.SetSegment(int(dm.SegmentId), seg)
		return nil
	}
	rm, err := wire.ParseNormRepairMsg(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if int(rm.SegmentId) >= blk.Size() {
		return fmt.Errorf("repair segment id %d out of range", rm.SegmentId)
	}
	seg, ok := pool.Get()
	if !ok {
		return fmt.Errorf("segment pool exhausted")
	}
	n := copy(seg, rm.Payload)
	clear(seg[n:])
	blk.SetSegment(int(rm.SegmentId), seg)
	logger.Log(normlog.RepairCommitted{BlockId: uint32(blk.Id())})
	return nil
}

type repairMessage struct {
	nack *wire.NormNackMsg
}

func (m repairMessage) NewRepairRequest() block.RepairRequest { return m.nack.NewRepairRequest() }
func (m repairMessage) AttachRepairRequest(req block.RepairRequest, segmentSize uint16) error {
	return m.nack.AttachRepairRequest(req, segmentSize)
}
func (m repairMessage) PackRepairRequest(req block.RepairRequest) error {
	return m.nack.PackRepairRequest(req)
}

func sendNack(blk *block.Block, senderNackAddr string, numData, numParity, segmentSize int) error {
	nack := wire.NewNormNackMsg()
	msg := repairMessage{nack: nack}
	if err := blk.AppendRepairRequest(msg, uint16(numData), uint16(numParity), protocol.ObjectId(1), false, uint16(segmentSize)); err != nil {
		return err
	}

	conn, err := net.Dial("udp4", senderNackAddr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write(nack.Bytes())
	return err
}
