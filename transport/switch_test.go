package transport

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Switch", func() {
	var (
		sw   *Switch
		pipe *PipeDevice
	)

	BeforeEach(func() {
		sw = NewSwitch()
		pipe = NewPipeDevice(16)
		sw.Attach(1, pipe)
	})

	It("should refuse NoPort", func() {
		_, err := sw.SendBytes(NoPort, []byte{1})

		Expect(err).To(MatchError(ErrNoPort))
		Expect(sw.Available(NoPort)).To(BeFalse())
		Expect(func() { sw.Attach(NoPort, pipe) }).To(Panic())
	})

	It("should send to the attached device", func() {
		var got []byte
		pipe.OnWrite(func(buf []byte) {
			got = append(got, buf...)
		})

		n, err := sw.SendBytes(1, []byte{1, 2, 3})

		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(3))
		Expect(got).To(Equal([]byte{1, 2, 3}))
		Expect(pipe.Written()).To(Equal(3))
	})

	It("should report an unplugged device", func() {
		pipe.SetAvailable(false)

		_, err := sw.SendBytes(1, []byte{1})

		Expect(err).To(MatchError(ErrUnavailable))
		Expect(sw.Available(1)).To(BeFalse())
		Expect(sw.ReceiveBytes(1, make([]byte, 4), time.Millisecond)).To(Equal(0))
	})

	It("should receive injected bytes", func() {
		Expect(pipe.Inject([]byte{7, 8, 9})).To(Equal(3))

		buf := make([]byte, 2)
		Expect(sw.ReceiveBytes(1, buf, time.Millisecond)).To(Equal(2))
		Expect(buf).To(Equal([]byte{7, 8}))

		Expect(sw.ReceiveBytes(1, buf, time.Millisecond)).To(Equal(1))
		Expect(buf[0]).To(Equal(byte(9)))
	})

	It("should wait for the timeout when nothing arrives", func() {
		start := time.Now()

		n := sw.ReceiveBytes(1, make([]byte, 4), 20*time.Millisecond)

		Expect(n).To(Equal(0))
		Expect(time.Since(start)).To(BeNumerically(">=", 20*time.Millisecond))
	})

	It("should drop injected bytes beyond the buffer", func() {
		Expect(pipe.Inject(make([]byte, 20))).To(Equal(16))
	})

	It("should change baud", func() {
		Expect(sw.ChangeBaud(1, 9600)).To(Succeed())
		Expect(pipe.Baud()).To(Equal(9600))

		Expect(sw.ChangeBaud(1, 1234)).NotTo(Succeed())
		Expect(sw.ChangeBaud(2, 9600)).To(MatchError(ErrNoPort))
	})

	It("should close all devices", func() {
		Expect(sw.Close()).To(Succeed())

		Expect(pipe.Available()).To(BeFalse())
		Expect(sw.Available(1)).To(BeFalse())
	})
})
