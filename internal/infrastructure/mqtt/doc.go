// Package mqtt connects the smart-home daemon to an MQTT broker.
//
// The client wraps paho.mqtt.golang with auto-reconnect, subscription
// restore after reconnect, handler panic recovery and a retained
// online/offline status on smarthome/system/status (with a Last Will for
// unexpected drops).
//
// # Topics
//
//	smarthome/state/therm/{device}     retained thermometer readings
//	smarthome/state/socket/{device}    retained outlet snapshots
//	smarthome/command/socket/{device}  outlet commands (wire protocol JSON)
//	smarthome/ack/socket/{device}      command outcomes
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.SocketCommand("socket_emulator"), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
package mqtt
