/*
Package events provides the controller's in-memory event broker: a
publish/subscribe bus that fans cluster events out to every subscriber.

# Broker

NewBroker creates a Broker whose internal event channel buffers up to
100 events; Start runs the broadcast loop in a goroutine and Stop ends
it. Subscribe returns a new Subscriber channel buffered to 50 events,
and Unsubscribe removes and closes it. There is no topic filtering:
every subscriber receives every event and filters on Event.Type itself.

# Delivery

Publish stamps Timestamp when it is zero and queues the event on the
internal channel. It blocks while that channel is full, and returns
without queuing once Stop has been called. The broadcast loop hands
each event to the subscribers one after another; a subscriber whose
buffer is full misses that event, so a slow subscriber loses events
rather than stalling the loop. A subscriber that keeps up sees events in
publish order. There is no persistence, replay or acknowledgement.

Stop ends the loop; events still queued on the internal channel are not
delivered, and subscriber channels stay open until Unsubscribe.

# Event types

  - vm.created, vm.updated, vm.deleted, vm.started, vm.stopped,
    vm.migrated, vm.error
  - task.created, task.failed, task.completed
  - node.joined, node.left, node.down
  - volume.created, volume.deleted, snapshot.created, snapshot.deleted
  - network.created, network.deleted, network.ip_exhausted

vm.updated, node.down and the task.* types are declared but nothing in
the tree publishes them.

# Producers and consumers

pkg/orchestrator publishes VM, volume, snapshot, network and node events
through its Service.publish helper; pkg/ipam publishes
network.ip_exhausted when an allocation finds no free address. pkg/manager
owns the broker (GetEventBroker) and forwards PublishEvent calls to it.
The one subscriber is pkg/api's /ws/frontend handler, which writes each
event to a connected UI client as JSON.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("%s: %s\n", event.Type, event.Message)
		}
	}()

	broker.Publish(&events.Event{
		ID:       "evt-123",
		Type:     events.EventVMCreated,
		Message:  "VM web-1 created",
		Metadata: map[string]string{"vm_id": "vm-1"},
	})
*/
package events
