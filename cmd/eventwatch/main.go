package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"referral_gate_bot/internal/api"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/spf13/viper"
)

// eventwatch prints the admin event stream of a running bot.
//
//	APP_EVENTWATCH_URL=ws://localhost:8080/api/v1/admin/events \
//	APP_EVENTWATCH_INITDATA='user=...&auth_date=...&hash=...' eventwatch
func main() {
	v := viper.New()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("eventwatch.url", "ws://localhost:8080/api/v1/admin/events")
	v.SetDefault("eventwatch.initdata", "")

	url := v.GetString("eventwatch.url")
	initData := v.GetString("eventwatch.initdata")
	if initData == "" {
		log.Fatal("APP_EVENTWATCH_INITDATA is required")
	}

	header := http.Header{}
	header.Add("Authorization", "Telegram "+initData)

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		if resp != nil {
			log.Fatalf("dial: %v (status %d)", err, resp.StatusCode)
		}
		log.Fatal("dial:", err)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	messageQueue := make(chan api.EventMessage)

	go func() {
		defer close(messageQueue)
		for {
			_, p, err := conn.ReadMessage()
			if err != nil {
				log.Println("read error:", err)
				return
			}

			var msg api.EventMessage
			if err := json.Unmarshal(p, &msg); err != nil {
				log.Println("json unmarshal error:", err)
				continue
			}
			messageQueue <- msg
		}
	}()

	log.Printf("watching %s", url)
	for {
		select {
		case msg, ok := <-messageQueue:
			if !ok {
				return
			}
			out, err := json.MarshalIndent(msg, "", "  ")
			if err != nil {
				log.Println("json marshal error:", err)
				continue
			}
			log.Printf("Received %s:\n%s\n", msg.Type, out)

		case <-interrupt:
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
