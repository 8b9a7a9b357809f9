package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"heroranker.app/internal/logging"
	"heroranker.app/internal/protocol"
	"heroranker.app/internal/sim/catalogs"
	"heroranker.app/internal/sim/world/feature/actions"
	"heroranker.app/internal/sim/world/kernel/model"
	"heroranker.app/internal/sim/world/logic/growth"
)

func main() {
	var (
		url       = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name      = flag.String("name", "bot", "client name")
		playerID  = flag.String("player", "", "player id to claim (optional)")
		configDir = flag.String("configs", "./configs", "config directory")
		every     = flag.Duration("every", 2*time.Second, "minimum interval between actions")
	)
	flag.Parse()

	log := logging.New("bot")
	cats, err := catalogs.Load(*configDir)
	if err != nil {
		log.WithError(err).Fatal("load catalogs")
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		log.WithError(err).Fatal("dial")
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		PlayerID:        *playerID,
	}
	if err := conn.WriteJSON(hello); err != nil {
		log.WithError(err).Fatal("send HELLO")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	b := &bot{cats: cats, log: log, limiter: rate.NewLimiter(rate.Every(*every), 1)}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if reply, ok := b.handle(msg); ok {
			if err := conn.WriteJSON(reply); err != nil {
				log.WithError(err).Warn("send ACT")
				return
			}
		}
	}
}

type bot struct {
	cats    *catalogs.Catalogs
	log     logrus.FieldLogger
	limiter *rate.Limiter

	seq     int
	pending string
}

// handle reacts to one server frame and returns an ACT to send, if any.
func (b *bot) handle(msg []byte) (protocol.ActMsg, bool) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.ActMsg{}, false
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return protocol.ActMsg{}, false
		}
		b.log.WithFields(logrus.Fields{"session": w.SessionID, "player": w.PlayerID, "tick": w.Tick}).Info("WELCOME")
		for name, d := range b.cats.Digests() {
			if w.Catalogs[name] != "" && w.Catalogs[name] != d {
				b.log.WithField("catalog", name).Warn("local catalog differs from server; costs may be off")
			}
		}

	case protocol.TypeActResult:
		var r protocol.ActResultMsg
		if err := json.Unmarshal(msg, &r); err != nil {
			return protocol.ActMsg{}, false
		}
		if r.ReqID == b.pending {
			b.pending = ""
		}
		b.log.WithFields(logrus.Fields{"req": r.ReqID, "ok": r.OK, "code": r.Code}).Info("ACT_RESULT")

	case protocol.TypeError:
		var e protocol.ErrorMsg
		_ = json.Unmarshal(msg, &e)
		b.log.WithFields(logrus.Fields{"code": e.Code, "message": e.Message}).Warn("ERROR")

	case protocol.TypeState:
		if b.pending != "" {
			return protocol.ActMsg{}, false
		}
		var st protocol.StateMsg
		if err := json.Unmarshal(msg, &st); err != nil {
			return protocol.ActMsg{}, false
		}
		a, ok := pickUpgrade(st.State, b.cats)
		if !ok || !b.limiter.Allow() {
			return protocol.ActMsg{}, false
		}
		raw, err := json.Marshal(a)
		if err != nil {
			return protocol.ActMsg{}, false
		}
		b.seq++
		b.pending = fmt.Sprintf("R_upgrade_%d", b.seq)
		b.log.WithFields(logrus.Fields{"tick": st.Tick, "building": a.BuildingID}).Info("upgrading")
		return protocol.ActMsg{
			Type:            protocol.TypeAct,
			ProtocolVersion: protocol.Version,
			ReqID:           b.pending,
			Action:          raw,
		}, true
	}
	return protocol.ActMsg{}, false
}

// pickUpgrade chooses the cheapest affordable upgrade of an idle building, or nothing
// when no builder is free.
func pickUpgrade(s model.GameState, cats *catalogs.Catalogs) (actions.Action, bool) {
	if s.FreeBuilders() <= 0 {
		return actions.Action{}, false
	}
	type option struct {
		id    string
		total float64
	}
	var opts []option
	for _, bl := range s.Buildings {
		def, ok := cats.Building(bl.Type)
		if !ok || bl.Upgrading() || bl.Level >= def.MaxLevel {
			continue
		}
		cost := growth.Cost(def, bl.Level)
		if !s.Resources.CanAfford(cost) {
			continue
		}
		var total float64
		for _, k := range model.AllResources() {
			total += cost.Get(k)
		}
		opts = append(opts, option{id: bl.ID, total: total})
	}
	if len(opts) == 0 {
		return actions.Action{}, false
	}
	sort.Slice(opts, func(i, j int) bool {
		if opts[i].total != opts[j].total {
			return opts[i].total < opts[j].total
		}
		return opts[i].id < opts[j].id
	})
	return actions.Action{Kind: actions.KindUpgrade, BuildingID: opts[0].id}, true
}
