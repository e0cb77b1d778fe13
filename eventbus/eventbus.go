// BSD 2-Clause License
//
// Copyright (c) 2020, Andrea Giacomo Baldan
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
//
// * Redistributions of source code must retain the above copyright notice, this
//   list of conditions and the following disclaimer.
//
// * Redistributions in binary form must reproduce the above copyright notice,
//   this list of conditions and the following disclaimer in the documentation
//   and/or other materials provided with the distribution.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE
// FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL
// DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER
// CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY,
// OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.

// Package eventbus publishes run lifecycle events to an AMQP exchange,
// the Context sender side-channel a Runner's construction contract
// accepts for HA/metrics consumers that live outside the
// request/response path of the Server or Supervisor.
package eventbus

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"

	"github.com/pipeforge/pipeforge/runner"
)

// Queue publishes runner.Event values onto a named AMQP queue, dialing
// fresh for each publish rather than holding a connection open.
type Queue struct {
	url, queue                               string
	durable, deleteUnused, exclusive, noWait bool
}

// Option configures a Queue at construction time.
type Option func(*Queue)

// Durable marks the declared queue as surviving a broker restart.
func Durable(d bool) Option { return func(q *Queue) { q.durable = d } }

// New builds a Queue that will publish to queueName on the broker at url.
func New(url, queueName string, opts ...Option) *Queue {
	q := &Queue{url: url, queue: queueName}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Publish implements runner.ContextSender, encoding ev as JSON and
// publishing it to the configured queue.
func (q *Queue) Publish(ev runner.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventbus: encode event: %w", err)
	}

	conn, err := amqp.Dial(q.url)
	if err != nil {
		return fmt.Errorf("eventbus: dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("eventbus: channel: %w", err)
	}
	defer ch.Close()

	queue, err := ch.QueueDeclare(
		q.queue,
		q.durable,
		q.deleteUnused,
		q.exclusive,
		q.noWait,
		nil,
	)
	if err != nil {
		return fmt.Errorf("eventbus: declare queue: %w", err)
	}

	err = ch.Publish(
		"",
		queue.Name,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("eventbus: publish: %w", err)
	}
	return nil
}

// Subscribe streams every runner.Event published to the queue into
// events until done is closed; it is the HA/metrics consumer side of the
// channel a Publish call feeds.
func (q *Queue) Subscribe(done <-chan struct{}, events chan<- runner.Event) error {
	conn, err := amqp.Dial(q.url)
	if err != nil {
		return fmt.Errorf("eventbus: dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("eventbus: channel: %w", err)
	}
	defer ch.Close()

	queue, err := ch.QueueDeclare(
		q.queue,
		q.durable,
		q.deleteUnused,
		q.exclusive,
		q.noWait,
		nil,
	)
	if err != nil {
		return fmt.Errorf("eventbus: declare queue: %w", err)
	}

	msgs, err := ch.Consume(
		queue.Name,
		"",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("eventbus: consume: %w", err)
	}

	for {
		select {
		case <-done:
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			var ev runner.Event
			if err := json.Unmarshal(d.Body, &ev); err != nil {
				continue
			}
			events <- ev
		}
	}
}
