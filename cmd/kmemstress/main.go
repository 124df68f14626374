// kmemstress drives the page allocator and the buffer cache with concurrent workloads
// on a simulated machine and prints their counters.
package main

func main() {
	execute()
}
