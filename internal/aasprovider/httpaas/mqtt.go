package httpaas

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// startMQTT connects to the configured broker and subscribes to the
// configured topic, wired the way the teacher's NewMQTTMessaging/Connect
// do: client options built up front, TLS only for mqtts, connect/lost
// handlers logging state transitions, a blocking WaitTimeout on connect.
func (p *Provider) startMQTT(ctx context.Context) error {
	cfg := p.cfg.MQTT
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)

	if strings.HasPrefix(cfg.BrokerURL, "mqtts://") {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: cfg.TLSInsecureSkipVerify})
	}

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.logger.Warn("mqtt connection lost", zap.Error(err))
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.logger.Info("mqtt connection established", zap.String("broker", cfg.BrokerURL))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("httpaas: mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("httpaas: mqtt connect: %w", err)
	}

	subToken := client.Subscribe(cfg.Topic, cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		p.handleMQTTMessage(msg.Topic(), msg.Payload())
	})
	if !subToken.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("httpaas: mqtt subscribe timeout")
	}
	if err := subToken.Error(); err != nil {
		return fmt.Errorf("httpaas: mqtt subscribe: %w", err)
	}

	p.mu.Lock()
	p.mqttClient = client
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		client.Disconnect(250)
	}()
	return nil
}

func (p *Provider) handleMQTTMessage(topic string, payload []byte) {
	hintSubmodelID, hintIDShort := parseTopic(topic)

	candidates, err := parsePayload(payload, p.cfg.MQTT, hintSubmodelID, hintIDShort)
	if err != nil {
		p.logger.Warn("mqtt payload parse failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	for _, c := range candidates {
		if c.SubmodelID == "" || c.IDShort == "" {
			p.logger.Warn("mqtt message missing submodel or idShort hint, dropping",
				zap.String("topic", topic))
			continue
		}
		p.enqueueWrite(c.SubmodelID, c.IDShort, c.Value)
	}
}

// parseTopic recognizes the segments submodels/<base64url> and
// submodelElements/<idShortPath>/{updated|patched|patch|value|$value} per
// spec.md §6, returning the decoded submodel identifier and the trailing
// idShort (the last segment of idShortPath). Either return value may be
// empty if the topic doesn't match.
func parseTopic(topic string) (submodelID, idShort string) {
	segments := strings.Split(strings.Trim(topic, "/"), "/")

	for i, seg := range segments {
		if seg == "submodels" && i+1 < len(segments) {
			if decoded, err := base64.RawURLEncoding.DecodeString(segments[i+1]); err == nil {
				submodelID = string(decoded)
			}
		}
		if seg == "submodelElements" && i+1 < len(segments) {
			rest := segments[i+1:]
			end := len(rest)
			if len(rest) > 0 {
				switch rest[len(rest)-1] {
				case "updated", "patched", "patch", "value", "$value":
					end = len(rest) - 1
				}
			}
			if end > 0 {
				idShort = rest[end-1]
			}
		}
	}
	return submodelID, idShort
}

// writeCandidate is one parsed AAS-side change extracted from an MQTT
// payload.
type writeCandidate struct {
	SubmodelID string
	IDShort    string
	Value      interface{}
}

// parsePayload decodes an MQTT message body per spec.md §4.7: an explicit
// object field set, a patches/operations/patch array (each entry parsed
// independently), or a scalar value combined with topic hints.
func parsePayload(payload []byte, cfg *MQTTConfig, hintSubmodelID, hintIDShort string) ([]writeCandidate, error) {
	var decoded interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("httpaas: invalid JSON payload: %w", err)
	}

	switch v := decoded.(type) {
	case map[string]interface{}:
		if arr := firstArrayField(v, cfg.patchArrayKeys()); arr != nil {
			var out []writeCandidate
			for _, entry := range arr {
				obj, ok := entry.(map[string]interface{})
				if !ok {
					continue
				}
				out = append(out, objectCandidate(obj, cfg, hintSubmodelID, hintIDShort))
			}
			return out, nil
		}
		return []writeCandidate{objectCandidate(v, cfg, hintSubmodelID, hintIDShort)}, nil
	default:
		return []writeCandidate{{SubmodelID: hintSubmodelID, IDShort: hintIDShort, Value: decoded}}, nil
	}
}

func objectCandidate(obj map[string]interface{}, cfg *MQTTConfig, hintSubmodelID, hintIDShort string) writeCandidate {
	candidate := writeCandidate{SubmodelID: hintSubmodelID, IDShort: hintIDShort}
	if v, ok := firstStringField(obj, cfg.submodelKeys()); ok {
		candidate.SubmodelID = v
	}
	if v, ok := firstStringField(obj, cfg.idShortKeys()); ok {
		candidate.IDShort = v
	}
	for _, key := range cfg.valueKeys() {
		if v, ok := obj[key]; ok {
			candidate.Value = v
			break
		}
	}
	return candidate
}

func firstStringField(obj map[string]interface{}, keys []string) (string, bool) {
	for _, key := range keys {
		if v, ok := obj[key]; ok {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

func firstArrayField(obj map[string]interface{}, keys []string) []interface{} {
	for _, key := range keys {
		if v, ok := obj[key]; ok {
			if arr, ok := v.([]interface{}); ok {
				return arr
			}
		}
	}
	return nil
}
